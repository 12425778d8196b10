package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/couplegram/couplegram/internal/cache"
	"github.com/couplegram/couplegram/internal/client/storage"
	"github.com/couplegram/couplegram/internal/gateway"
	"github.com/couplegram/couplegram/internal/models"
	"github.com/couplegram/couplegram/internal/optimistic"
	"github.com/couplegram/couplegram/internal/remote"
)

const helpText = `Available commands:
  signup | signin | signout | me | profile
  post | edit <id> | delete <id> | like <id> | save <id>
  recent | feed | search <term> | posts <userId> | saved | liked
  users | user <id> | help | exit`

// tokenSource is implemented by gateways holding a bearer token.
type tokenSource interface {
	Token() string
}

// shell is the interactive client. Reads go through the query cache and
// writes through cache.Mutate so that affected listings refetch.
type shell struct {
	ops    *remote.Ops
	gw     gateway.Gateway
	cache  *cache.Coordinator
	state  *storage.LocalStorage
	prompt *storage.Prompter
	out    io.Writer
	log    *zap.Logger
	url    string

	feed *cache.Pages[models.Post]
}

func newShell(gw gateway.Gateway, c *cache.Coordinator, st *storage.LocalStorage, in io.Reader, out io.Writer, url string, log *zap.Logger) (*shell, error) {
	s := &shell{
		ops:    remote.New(gw, log),
		gw:     gw,
		cache:  c,
		state:  st,
		prompt: storage.NewPrompter(in, out),
		out:    out,
		log:    log,
		url:    url,
	}
	feed, err := cache.Infinite(c, cache.NewKey(cache.OpPosts), func(ctx context.Context, cursor string) ([]models.Post, string, error) {
		page, err := s.ops.ListInfinitePosts(ctx, cursor)
		if err != nil {
			return nil, "", err
		}
		return page.Documents, page.NextCursor, nil
	})
	if err != nil {
		return nil, err
	}
	s.feed = feed
	return s, nil
}

// run reads commands until exit or end of input.
func (s *shell) run(ctx context.Context) {
	for {
		fmt.Fprint(s.out, "couplegram> ")
		line, ok := s.prompt.Line()
		if !ok {
			return
		}
		args := strings.Fields(line)
		if len(args) == 0 {
			continue
		}
		if args[0] == "exit" {
			fmt.Fprintln(s.out, "Bye")
			return
		}
		if err := s.exec(ctx, args); err != nil {
			fmt.Fprintln(s.out, "error:", describe(err))
		}
	}
}

func (s *shell) exec(ctx context.Context, args []string) error {
	arg := func() (string, error) {
		if len(args) < 2 {
			return "", fmt.Errorf("usage: %s <arg>", args[0])
		}
		return strings.Join(args[1:], " "), nil
	}

	switch args[0] {
	case "help":
		fmt.Fprintln(s.out, helpText)
		return nil
	case "signup":
		return s.signUp(ctx)
	case "signin":
		return s.signIn(ctx)
	case "signout":
		return s.signOut(ctx)
	case "me":
		u, err := s.currentUser(ctx)
		if err != nil {
			return err
		}
		printUser(s.out, u)
		return nil
	case "profile":
		return s.editProfile(ctx)
	case "post":
		return s.createPost(ctx)
	case "recent":
		return s.list(ctx, cache.NewKey(cache.OpRecentPosts), s.ops.ListRecentPosts)
	case "feed":
		return s.nextFeedPage(ctx)
	case "users":
		users, err := cache.Query(ctx, s.cache, cache.NewKey(cache.OpUsers), func(ctx context.Context) ([]models.UserProfile, error) {
			return s.ops.ListUsers(ctx, 0)
		})
		if err != nil {
			return err
		}
		for i := range users {
			printUser(s.out, &users[i])
		}
		return nil
	case "saved", "liked":
		me, err := s.userID()
		if err != nil {
			return err
		}
		if args[0] == "saved" {
			return s.list(ctx, cache.NewKey(cache.OpSavedPosts, me), func(ctx context.Context) ([]models.Post, error) {
				return s.ops.GetSavedPosts(ctx, me)
			})
		}
		return s.list(ctx, cache.NewKey(cache.OpLikedPosts, me), func(ctx context.Context) ([]models.Post, error) {
			return s.ops.GetLikedPosts(ctx, me)
		})
	}

	v, err := arg()
	if err != nil {
		if _, known := commands[args[0]]; known {
			return err
		}
		return fmt.Errorf("unknown command %q, type 'help' for a list of commands", args[0])
	}
	switch args[0] {
	case "search":
		return s.list(ctx, cache.NewKey(cache.OpSearchPosts, v), func(ctx context.Context) ([]models.Post, error) {
			return s.ops.SearchPosts(ctx, v)
		})
	case "posts":
		return s.list(ctx, cache.NewKey(cache.OpUserPosts, v), func(ctx context.Context) ([]models.Post, error) {
			return s.ops.GetUserPosts(ctx, v)
		})
	case "user":
		u, err := cache.Query(ctx, s.cache, cache.NewKey(cache.OpUserByID, v), func(ctx context.Context) (*models.UserProfile, error) {
			return s.ops.GetUserByID(ctx, v)
		})
		if err != nil {
			return err
		}
		printUser(s.out, u)
		return nil
	case "edit":
		return s.editPost(ctx, v)
	case "delete":
		return s.deletePost(ctx, v)
	case "like":
		return s.toggleLike(ctx, v)
	case "save":
		return s.toggleSave(ctx, v)
	}
	return fmt.Errorf("unknown command %q, type 'help' for a list of commands", args[0])
}

var commands = map[string]struct{}{
	"search": {}, "posts": {}, "user": {}, "edit": {}, "delete": {}, "like": {}, "save": {},
}

func (s *shell) signUp(ctx context.Context) error {
	nu, err := s.prompt.PromptNewUser()
	if err != nil {
		return err
	}
	u, err := cache.Mutate(ctx, s.cache, cache.MutCreateAccount, "", func(ctx context.Context) (*models.UserProfile, error) {
		return s.ops.CreateAccount(ctx, nu)
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "Welcome, %s! Sign in to start posting.\n", u.Name)
	return nil
}

func (s *shell) signIn(ctx context.Context) error {
	email, err := s.prompt.Ask("Email")
	if err != nil {
		return err
	}
	password, err := s.prompt.Ask("Password")
	if err != nil {
		return err
	}
	if _, err := cache.Mutate(ctx, s.cache, cache.MutSignIn, "", func(ctx context.Context) (*models.Session, error) {
		return s.ops.SignIn(ctx, email, password)
	}); err != nil {
		return err
	}
	u, err := s.currentUser(ctx)
	if err != nil {
		return err
	}
	token := ""
	if ts, ok := s.gw.(tokenSource); ok {
		token = ts.Token()
	}
	if err := s.state.Update(func(st *storage.State) {
		st.Token, st.AccountID, st.UserID, st.URL = token, u.AccountID, u.ID, s.url
	}); err != nil {
		s.log.Warn("failed to save session state", zap.Error(err))
	}
	fmt.Fprintf(s.out, "Signed in as @%s\n", u.Username)
	return nil
}

func (s *shell) signOut(ctx context.Context) error {
	_, err := cache.Mutate(ctx, s.cache, cache.MutSignOut, "", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.ops.SignOut(ctx)
	})
	if clearErr := s.state.Clear(); clearErr != nil {
		s.log.Warn("failed to clear session state", zap.Error(clearErr))
	}
	if err != nil && !errors.Is(err, gateway.ErrUnauthorized) {
		return err
	}
	fmt.Fprintln(s.out, "Signed out")
	return nil
}

func (s *shell) currentUser(ctx context.Context) (*models.UserProfile, error) {
	return cache.Query(ctx, s.cache, cache.NewKey(cache.OpCurrentUser), s.ops.GetCurrentUser)
}

// userID is the profile id of the signed-in user.
func (s *shell) userID() (string, error) {
	if id := s.state.State().UserID; id != "" {
		return id, nil
	}
	return "", remote.ErrNoCurrentUser
}

func (s *shell) editProfile(ctx context.Context) error {
	u, err := s.currentUser(ctx)
	if err != nil {
		return err
	}
	form, closer, err := s.prompt.PromptUpdateUser(u)
	if closer != nil {
		defer closer.Close()
	}
	if err != nil {
		return err
	}
	updated, err := cache.Mutate(ctx, s.cache, cache.MutUpdateUser, u.ID, func(ctx context.Context) (*models.UserProfile, error) {
		return s.ops.UpdateUser(ctx, form)
	})
	if err != nil {
		return err
	}
	printUser(s.out, updated)
	return nil
}

func (s *shell) createPost(ctx context.Context) error {
	me, err := s.userID()
	if err != nil {
		return err
	}
	form, closer, err := s.prompt.PromptNewPost(me)
	if closer != nil {
		defer closer.Close()
	}
	if err != nil {
		return err
	}
	p, err := cache.Mutate(ctx, s.cache, cache.MutCreatePost, "", func(ctx context.Context) (*models.Post, error) {
		return s.ops.CreatePost(ctx, form)
	})
	if err != nil {
		return err
	}
	printPost(s.out, p)
	return nil
}

func (s *shell) getPost(ctx context.Context, id string) (*models.Post, error) {
	return cache.Query(ctx, s.cache, cache.NewKey(cache.OpPostByID, id), func(ctx context.Context) (*models.Post, error) {
		return s.ops.GetPostByID(ctx, id)
	})
}

func (s *shell) editPost(ctx context.Context, id string) error {
	post, err := s.getPost(ctx, id)
	if err != nil {
		return err
	}
	form, closer, err := s.prompt.PromptUpdatePost(post)
	if closer != nil {
		defer closer.Close()
	}
	if err != nil {
		return err
	}
	updated, err := cache.Mutate(ctx, s.cache, cache.MutUpdatePost, id, func(ctx context.Context) (*models.Post, error) {
		return s.ops.UpdatePost(ctx, form)
	})
	if err != nil {
		return err
	}
	printPost(s.out, updated)
	return nil
}

func (s *shell) deletePost(ctx context.Context, id string) error {
	post, err := s.getPost(ctx, id)
	if err != nil {
		return err
	}
	if _, err := cache.Mutate(ctx, s.cache, cache.MutDeletePost, id, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.ops.DeletePost(ctx, post.ID, post.ImageID)
	}); err != nil {
		return err
	}
	fmt.Fprintln(s.out, "Post deleted")
	return nil
}

func (s *shell) toggleLike(ctx context.Context, id string) error {
	me, err := s.userID()
	if err != nil {
		return err
	}
	post, err := s.getPost(ctx, id)
	if err != nil {
		return err
	}
	state := optimistic.NewLikeState(post, s.ops.SetLiked)
	if err := state.Toggle(ctx, me); err != nil {
		return err
	}
	s.cache.Apply(cache.MutLikePost, id)
	if state.Liked(me) {
		fmt.Fprintf(s.out, "Liked (%d likes)\n", state.Count())
	} else {
		fmt.Fprintf(s.out, "Unliked (%d likes)\n", state.Count())
	}
	return nil
}

func (s *shell) toggleSave(ctx context.Context, id string) error {
	me, err := s.userID()
	if err != nil {
		return err
	}
	records, err := cache.Query(ctx, s.cache, cache.NewKey(cache.OpSaveRecords, me), func(ctx context.Context) ([]models.SaveRecord, error) {
		return s.ops.GetSaveRecords(ctx, me)
	})
	if err != nil {
		return err
	}
	state := optimistic.NewSaveState(id, me, records, s.ops.SavePost, s.ops.DeleteSavePost)
	wasSaved := state.Saved()
	if err := state.Toggle(ctx); err != nil {
		return err
	}
	if wasSaved {
		s.cache.Apply(cache.MutDeleteSavePost, me)
		fmt.Fprintln(s.out, "Removed from saved")
	} else {
		s.cache.Apply(cache.MutSavePost, me)
		fmt.Fprintln(s.out, "Saved")
	}
	return nil
}

func (s *shell) nextFeedPage(ctx context.Context) error {
	if !s.feed.HasNextPage() {
		fmt.Fprintln(s.out, "End of feed")
		return nil
	}
	page, err := s.feed.FetchNextPage(ctx)
	if err != nil {
		return err
	}
	if len(page) == 0 {
		fmt.Fprintln(s.out, "End of feed")
		return nil
	}
	for i := range page {
		printPost(s.out, &page[i])
	}
	return nil
}

func (s *shell) list(ctx context.Context, key cache.Key, fetch func(context.Context) ([]models.Post, error)) error {
	posts, err := cache.Query(ctx, s.cache, key, fetch)
	if err != nil {
		return err
	}
	if len(posts) == 0 {
		fmt.Fprintln(s.out, "No posts")
	}
	for i := range posts {
		printPost(s.out, &posts[i])
	}
	return nil
}

func printPost(w io.Writer, p *models.Post) {
	fmt.Fprintf(w, "%s  %q  likes:%d", p.ID, p.Caption, len(p.LikerIDs))
	if p.Location != "" {
		fmt.Fprintf(w, "  @%s", p.Location)
	}
	for _, t := range p.Tags {
		fmt.Fprintf(w, " #%s", t)
	}
	fmt.Fprintln(w)
}

func printUser(w io.Writer, u *models.UserProfile) {
	fmt.Fprintf(w, "%s  %s (@%s)", u.ID, u.Name, u.Username)
	if u.Bio != "" {
		fmt.Fprintf(w, "  %s", u.Bio)
	}
	fmt.Fprintln(w)
}

// describe renders err for the prompt.
func describe(err error) string {
	switch {
	case errors.Is(err, remote.ErrNoCurrentUser):
		return "not signed in"
	case errors.Is(err, optimistic.ErrPending):
		return "previous change still in flight"
	case errors.Is(err, io.EOF):
		return "input closed"
	}
	return err.Error()
}
