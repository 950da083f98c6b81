package remote

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/storage/memory"

	"git.home.luguber.info/inful/memobackup/internal/config"
	"git.home.luguber.info/inful/memobackup/internal/foundation/errors"
)

const originRemote = "origin"

// GitClient commits each backup into a local clone and pushes it.
type GitClient struct {
	cfg config.GitRemoteConfig
	mu  sync.Mutex
}

// NewGitClient creates a client for cfg. Nothing is cloned until the first upload.
func NewGitClient(cfg config.GitRemoteConfig) *GitClient {
	if cfg.Branch == "" {
		cfg.Branch = config.DefaultGitBranch
	}
	return &GitClient{cfg: cfg}
}

func (g *GitClient) Name() string { return "git" }

func (g *GitClient) branchRef() plumbing.ReferenceName {
	return plumbing.NewBranchReferenceName(g.cfg.Branch)
}

func (g *GitClient) auth() transport.AuthMethod {
	if g.cfg.Token == "" {
		return nil
	}
	user := g.cfg.Username
	if user == "" {
		user = "x-access-token"
	}
	return &githttp.BasicAuth{Username: user, Password: g.cfg.Token}
}

func (g *GitClient) Upload(ctx context.Context, fileName string, content []byte, silent bool) (UploadResult, error) {
	if err := validateUpload(fileName, content); err != nil {
		return UploadResult{}, err
	}
	if g.cfg.URL == "" {
		return UploadResult{}, errors.NotConnectedError("no git remote configured").Build()
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	repo, err := g.open(ctx)
	if err != nil {
		return UploadResult{}, err
	}
	wt, err := repo.Worktree()
	if err != nil {
		return UploadResult{}, errors.WrapError(err, errors.CategoryInternal, "open worktree").Build()
	}

	if err := g.pull(ctx, wt); err != nil {
		return UploadResult{}, err
	}

	f, err := wt.Filesystem.Create(fileName)
	if err != nil {
		return UploadResult{}, errors.WrapError(err, errors.CategoryFileSystem, "create backup file").Retryable().Build()
	}
	if _, err := f.Write(content); err != nil {
		_ = f.Close()
		return UploadResult{}, errors.WrapError(err, errors.CategoryFileSystem, "write backup file").Retryable().Build()
	}
	if err := f.Close(); err != nil {
		return UploadResult{}, errors.WrapError(err, errors.CategoryFileSystem, "close backup file").Retryable().Build()
	}
	if _, err := wt.Add(fileName); err != nil {
		return UploadResult{}, errors.WrapError(err, errors.CategoryInternal, "stage backup file").Build()
	}

	msg := "Backup " + fileName
	if silent {
		msg += " (automatic)"
	}
	hash, err := wt.Commit(msg, &git.CommitOptions{
		Author:            &object.Signature{Name: g.cfg.AuthorName, Email: g.cfg.AuthorEmail, When: time.Now()},
		AllowEmptyCommits: true,
	})
	if err != nil {
		return UploadResult{}, errors.WrapError(err, errors.CategoryInternal, "commit backup").Build()
	}

	ref := g.branchRef()
	err = repo.PushContext(ctx, &git.PushOptions{
		RemoteName: originRemote,
		Auth:       g.auth(),
		RefSpecs:   []gitconfig.RefSpec{gitconfig.RefSpec(fmt.Sprintf("%s:%s", ref, ref))},
	})
	if err != nil && !stderrors.Is(err, git.NoErrAlreadyUpToDate) {
		return UploadResult{}, classifyGitError(err, "push", g.cfg.URL)
	}

	return UploadResult{
		FileName: fileName,
		Location: fmt.Sprintf("%s@%s", g.cfg.URL, hash.String()[:12]),
		Bytes:    len(content),
	}, nil
}

// Check lists the remote references, which requires reachability and valid credentials.
func (g *GitClient) Check(ctx context.Context) error {
	if g.cfg.URL == "" {
		return errors.NotConnectedError("no git remote configured").Build()
	}
	rem := git.NewRemote(memory.NewStorage(), &gitconfig.RemoteConfig{Name: originRemote, URLs: []string{g.cfg.URL}})
	_, err := rem.ListContext(ctx, &git.ListOptions{Auth: g.auth()})
	if err != nil && !stderrors.Is(err, transport.ErrEmptyRemoteRepository) {
		return classifyGitError(err, "ls-remote", g.cfg.URL)
	}
	return nil
}

// open returns the local clone, cloning or initializing it on first use.
func (g *GitClient) open(ctx context.Context) (*git.Repository, error) {
	repo, err := git.PlainOpen(g.cfg.Workdir)
	if err == nil {
		return repo, nil
	}
	if !stderrors.Is(err, git.ErrRepositoryNotExists) {
		return nil, errors.WrapError(err, errors.CategoryFileSystem, "open git workdir").
			WithContext("path", g.cfg.Workdir).
			Build()
	}

	_, statErr := os.Stat(g.cfg.Workdir)
	created := os.IsNotExist(statErr)
	cleanup := func() {
		if created {
			_ = os.RemoveAll(g.cfg.Workdir)
		}
	}

	repo, err = git.PlainCloneContext(ctx, g.cfg.Workdir, false, &git.CloneOptions{
		URL:           g.cfg.URL,
		Auth:          g.auth(),
		ReferenceName: g.branchRef(),
		SingleBranch:  true,
	})
	if err == nil {
		return repo, nil
	}
	if !isMissingBranch(err) {
		cleanup()
		return nil, classifyGitError(err, "clone", g.cfg.URL)
	}

	// Empty remote or branch not created yet: start a fresh history.
	cleanup()
	repo, err = git.PlainInit(g.cfg.Workdir, false)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryFileSystem, "init git workdir").Build()
	}
	if _, err := repo.CreateRemote(&gitconfig.RemoteConfig{Name: originRemote, URLs: []string{g.cfg.URL}}); err != nil {
		return nil, errors.WrapError(err, errors.CategoryInternal, "create git remote").Build()
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, g.branchRef())); err != nil {
		return nil, errors.WrapError(err, errors.CategoryInternal, "set HEAD").Build()
	}
	return repo, nil
}

func (g *GitClient) pull(ctx context.Context, wt *git.Worktree) error {
	err := wt.PullContext(ctx, &git.PullOptions{
		RemoteName:    originRemote,
		ReferenceName: g.branchRef(),
		SingleBranch:  true,
		Auth:          g.auth(),
	})
	switch {
	case err == nil, stderrors.Is(err, git.NoErrAlreadyUpToDate), isMissingBranch(err):
		return nil
	default:
		return classifyGitError(err, "pull", g.cfg.URL)
	}
}

func isMissingBranch(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, transport.ErrEmptyRemoteRepository) || stderrors.Is(err, plumbing.ErrReferenceNotFound) {
		return true
	}
	var noMatch git.NoMatchingRefSpecError
	if stderrors.As(err, &noMatch) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "couldn't find remote ref")
}

// classifyGitError translates go-git errors into classified errors.
func classifyGitError(err error, op, url string) error {
	if err == nil {
		return nil
	}
	if _, ok := errors.AsClassified(err); ok {
		return err
	}

	build := func(b *errors.ErrorBuilder) error {
		return b.WithCause(err).WithContext("op", op).WithContext("url", url).Build()
	}

	switch {
	case stderrors.Is(err, transport.ErrAuthenticationRequired), stderrors.Is(err, transport.ErrAuthorizationFailed):
		return build(errors.AuthError("git authentication failed"))
	case stderrors.Is(err, transport.ErrRepositoryNotFound):
		return build(errors.NotConnectedError("git repository not found"))
	case stderrors.Is(err, transport.ErrInvalidAuthMethod):
		return build(errors.NotConnectedError("git credentials are not usable for this remote"))
	case stderrors.Is(err, context.DeadlineExceeded), stderrors.Is(err, git.ErrNonFastForwardUpdate):
		return build(errors.NetworkError("git " + op + " failed"))
	}

	l := strings.ToLower(err.Error())
	switch {
	case strings.Contains(l, "authentication") || strings.Contains(l, "not authorized") || strings.Contains(l, "invalid credentials"):
		return build(errors.AuthError("git authentication failed"))
	case strings.Contains(l, "rate limit") || strings.Contains(l, "too many requests"):
		return build(errors.NetworkError("git remote is rate limiting").RateLimit())
	case strings.Contains(l, "repository not found") || strings.Contains(l, "does not exist"):
		return build(errors.NotConnectedError("git repository not found"))
	case strings.Contains(l, "unsupported scheme") || strings.Contains(l, "protocol not supported"):
		return build(errors.MalformedRequestError("unsupported git remote URL"))
	default:
		// connection resets, DNS failures, remote hang-ups and 5xx responses
		return build(errors.NetworkError("git " + op + " failed"))
	}
}

var _ Client = (*GitClient)(nil)
