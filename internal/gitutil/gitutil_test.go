package gitutil

import (
	"io/ioutil"
	"os"
	"testing"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
)

func TestCloneOrOpenOpensExisting(t *testing.T) {
	dir, err := ioutil.TempDir("", "gitutil")
	if err != nil {
		t.Fatalf("TempDir failed: %s", err)
	}
	defer os.RemoveAll(dir)

	repo, err := git.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("PlainInit failed: %s", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		t.Fatalf("Worktree failed: %s", err)
	}
	if err := ioutil.WriteFile(dir+"/README.md", []byte("hello"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %s", err)
	}
	if _, err := wt.Add("README.md"); err != nil {
		t.Fatalf("Add failed: %s", err)
	}
	_, err = wt.Commit("initial", &git.CommitOptions{
		Author: &object.Signature{Name: "test", Email: "test@example.com"},
	})
	if err != nil {
		t.Fatalf("Commit failed: %s", err)
	}

	opened, err := CloneOrOpen(dir, "")
	if err != nil {
		t.Fatalf("CloneOrOpen should open the existing repo: %s", err)
	}
	head, err := HeadCommit(opened)
	if err != nil {
		t.Fatalf("HeadCommit failed: %s", err)
	}
	if head == "" {
		t.Errorf("HeadCommit returned an empty hash")
	}
}

func TestPullLatestFailsWithoutOrigin(t *testing.T) {
	dir, err := ioutil.TempDir("", "gitutil-pull")
	if err != nil {
		t.Fatalf("TempDir failed: %s", err)
	}
	defer os.RemoveAll(dir)

	repo, err := git.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("PlainInit failed: %s", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		t.Fatalf("Worktree failed: %s", err)
	}
	if err := ioutil.WriteFile(dir+"/README.md", []byte("hello"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %s", err)
	}
	if _, err := wt.Add("README.md"); err != nil {
		t.Fatalf("Add failed: %s", err)
	}
	if _, err := wt.Commit("initial", &git.CommitOptions{
		Author: &object.Signature{Name: "test", Email: "test@example.com"},
	}); err != nil {
		t.Fatalf("Commit failed: %s", err)
	}

	if _, err := PullLatest(repo); err == nil {
		t.Fatalf("expected PullLatest to fail: repo has no origin remote configured")
	}
}
