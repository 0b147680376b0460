package github

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/go-github/v66/github"
)

// DefaultForkSettleDelay is how long to wait after GitHub accepts an
// asynchronous fork creation before the fork is assumed usable.
// Immediate use can race the remote-side provisioning.
const DefaultForkSettleDelay = 5 * time.Second

// Ops implements Forge on top of the gateway. All remote traffic goes
// through the allow-listed Call; go-github supplies the wire types.
type Ops struct {
	gateway *Gateway

	// SettleDelay is the wait applied after a 202 fork creation.
	// Tests set it to zero.
	SettleDelay time.Duration
}

// NewOps creates the production Forge implementation.
func NewOps(gateway *Gateway) *Ops {
	return &Ops{
		gateway:     gateway,
		SettleDelay: DefaultForkSettleDelay,
	}
}

// CurrentLogin resolves the authenticated actor's login. It is called
// once per run; the login is the owner of every fork created.
func (o *Ops) CurrentLogin(ctx context.Context) (string, error) {
	res := o.gateway.Call(ctx, "/user", http.MethodGet, nil)
	if res.Status != http.StatusOK {
		return "", fmt.Errorf("failed to get authenticated user (HTTP %d): %s", res.Status, res.Message())
	}

	var user github.User
	if err := res.Decode(&user); err != nil {
		return "", fmt.Errorf("failed to decode user response: %w", err)
	}
	return user.GetLogin(), nil
}

// ForkExists reports whether forkOwner already has a fork of repoName.
// Any non-200 status, transient errors included, is treated as "does
// not exist"; a spurious create attempt converges because creating an
// existing fork returns 200.
func (o *Ops) ForkExists(ctx context.Context, forkOwner, repoName string) bool {
	res := o.gateway.Call(ctx, fmt.Sprintf("/repos/%s/%s", forkOwner, repoName), http.MethodGet, nil)
	return res.Status == http.StatusOK
}

// CreateFork asks GitHub to fork org/repoName under the authenticated
// actor. 202 means provisioning started asynchronously and the fork
// needs the settling delay before it is usable; 200 means the fork
// already exists. Both are success.
func (o *Ops) CreateFork(ctx context.Context, org, repoName string) bool {
	fmt.Printf("Creating fork of %s/%s...\n", org, repoName)
	res := o.gateway.Call(ctx, fmt.Sprintf("/repos/%s/%s/forks", org, repoName), http.MethodPost, struct{}{})

	switch res.Status {
	case http.StatusAccepted:
		fmt.Println("Fork created successfully, waiting for it to be ready...")
		time.Sleep(o.SettleDelay)
		return true
	case http.StatusOK:
		fmt.Println("Fork already exists")
		return true
	default:
		fmt.Printf("Failed to create fork (HTTP %d): %v\n", res.Status, res.Body)
		return false
	}
}

// EnsureFork makes sure a fork of org/repoName exists under forkOwner,
// creating it if needed.
func (o *Ops) EnsureFork(ctx context.Context, org, repoName, forkOwner string) bool {
	if o.ForkExists(ctx, forkOwner, repoName) {
		fmt.Printf("Fork %s/%s already exists\n", forkOwner, repoName)
		return true
	}
	return o.CreateFork(ctx, org, repoName)
}

// PullRequestSpec describes a pull request from a fork branch to the
// upstream repository. Head uses the "owner:branch" form.
type PullRequestSpec struct {
	Title string
	Body  string
	Head  string
	Base  string
}

// OpenPullRequest opens a pull request on org/repoName and returns its
// HTML URL. Anything but 201 is a failure carrying the remote message.
func (o *Ops) OpenPullRequest(ctx context.Context, org, repoName string, spec PullRequestSpec) (string, error) {
	payload := &github.NewPullRequest{
		Title: github.String(spec.Title),
		Body:  github.String(spec.Body),
		Head:  github.String(spec.Head),
		Base:  github.String(spec.Base),
	}

	res := o.gateway.Call(ctx, fmt.Sprintf("/repos/%s/%s/pulls", org, repoName), http.MethodPost, payload)
	if res.Status != http.StatusCreated {
		return "", fmt.Errorf("failed to create PR (HTTP %d): %s", res.Status, res.Message())
	}

	var pr github.PullRequest
	if err := res.Decode(&pr); err != nil {
		return "", fmt.Errorf("failed to decode pull request response: %w", err)
	}
	return pr.GetHTMLURL(), nil
}

// DeleteBranch removes a branch from the fork, used to prune old sync
// branches. 204 means deleted.
func (o *Ops) DeleteBranch(ctx context.Context, forkOwner, repoName, branch string) bool {
	endpoint := fmt.Sprintf("/repos/%s/%s/git/refs/heads/%s", forkOwner, repoName, branch)
	res := o.gateway.Call(ctx, endpoint, http.MethodDelete, nil)
	return res.Status == http.StatusNoContent
}
