// Package memory provides an in-process gateway.Gateway. It backs tests and
// the client's offline mode and follows the query semantics of the server.
package memory

import (
	"bytes"
	"cmp"
	"context"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/couplegram/couplegram/internal/gateway"
	"github.com/couplegram/couplegram/internal/models"
)

const defaultLimit = 25

type file struct {
	meta models.StoredFile
	data []byte
}

// Gateway keeps every collection in memory. The zero value is not usable;
// construct it with New.
type Gateway struct {
	mu sync.Mutex

	baseURL string
	now     func() time.Time

	accounts map[string]*models.Account
	sessions map[string]*models.Session
	current  string
	users    map[string]*models.UserProfile
	posts    map[string]*models.Post
	saves    map[string]*models.SaveRecord
	files    map[string]*file

	faults map[string]error
	calls  map[string]int
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) { g.now = now }
}

// WithBaseURL sets the origin used for preview and avatar URLs.
func WithBaseURL(u string) Option {
	return func(g *Gateway) { g.baseURL = strings.TrimRight(u, "/") }
}

// New returns an empty gateway.
func New(opts ...Option) *Gateway {
	g := &Gateway{
		baseURL:  "http://localhost:8080",
		now:      time.Now,
		accounts: make(map[string]*models.Account),
		sessions: make(map[string]*models.Session),
		users:    make(map[string]*models.UserProfile),
		posts:    make(map[string]*models.Post),
		saves:    make(map[string]*models.SaveRecord),
		files:    make(map[string]*file),
		faults:   make(map[string]error),
		calls:    make(map[string]int),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

var _ gateway.Gateway = (*Gateway)(nil)

// FailNext makes the next call of the named method return err.
func (g *Gateway) FailNext(method string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.faults[method] = err
}

// Calls reports how many times the named method was invoked.
func (g *Gateway) Calls(method string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[method]
}

// enter records a call and returns a pending injected fault. g.mu must be held.
func (g *Gateway) enter(method string) error {
	g.calls[method]++
	if err, ok := g.faults[method]; ok {
		delete(g.faults, method)
		return err
	}
	return nil
}

func (g *Gateway) CreateAccount(ctx context.Context, email, password, name string) (*models.Account, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("CreateAccount"); err != nil {
		return nil, err
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, gateway.Invalidf("invalid email %q", email)
	}
	if len(password) < 8 {
		return nil, gateway.Invalidf("password must be at least 8 characters")
	}
	for _, a := range g.accounts {
		if a.Email == email {
			return nil, fmt.Errorf("%w: account %s already exists", gateway.ErrConflict, email)
		}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	a := &models.Account{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		CreatedAt:    g.now().UTC(),
	}
	g.accounts[a.ID] = a
	out := *a
	out.PasswordHash = nil
	return &out, nil
}

func (g *Gateway) DeleteAccount(ctx context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("DeleteAccount"); err != nil {
		return err
	}
	if _, ok := g.accounts[id]; !ok {
		return fmt.Errorf("account %s: %w", id, gateway.ErrNotFound)
	}
	delete(g.accounts, id)
	for sid, s := range g.sessions {
		if s.AccountID == id {
			delete(g.sessions, sid)
			if g.current == sid {
				g.current = ""
			}
		}
	}
	return nil
}

func (g *Gateway) GetAccount(ctx context.Context) (*models.Account, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("GetAccount"); err != nil {
		return nil, err
	}
	s, ok := g.sessions[g.current]
	if !ok || !g.now().Before(s.ExpiresAt) {
		return nil, gateway.ErrUnauthorized
	}
	a, ok := g.accounts[s.AccountID]
	if !ok {
		return nil, gateway.ErrUnauthorized
	}
	out := *a
	out.PasswordHash = nil
	return &out, nil
}

func (g *Gateway) CreateEmailSession(ctx context.Context, email, password string) (*models.Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("CreateEmailSession"); err != nil {
		return nil, err
	}
	email = strings.ToLower(strings.TrimSpace(email))
	for _, a := range g.accounts {
		if a.Email != email {
			continue
		}
		if bcrypt.CompareHashAndPassword(a.PasswordHash, []byte(password)) != nil {
			break
		}
		now := g.now().UTC()
		s := &models.Session{
			ID:        uuid.NewString(),
			AccountID: a.ID,
			Token:     uuid.NewString(),
			ExpiresAt: now.Add(365 * 24 * time.Hour),
			CreatedAt: now,
		}
		g.sessions[s.ID] = s
		g.current = s.ID
		out := *s
		return &out, nil
	}
	return nil, fmt.Errorf("%w: invalid credentials", gateway.ErrUnauthorized)
}

func (g *Gateway) DeleteSession(ctx context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("DeleteSession"); err != nil {
		return err
	}
	if id == gateway.CurrentSession {
		id = g.current
	}
	if _, ok := g.sessions[id]; !ok {
		return gateway.ErrUnauthorized
	}
	delete(g.sessions, id)
	if g.current == id {
		g.current = ""
	}
	return nil
}

func (g *Gateway) CreateUser(ctx context.Context, u *models.UserProfile) (*models.UserProfile, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("CreateUser"); err != nil {
		return nil, err
	}
	if u.AccountID == "" || u.Username == "" {
		return nil, gateway.Invalidf("accountId and username are required")
	}
	if err := g.usernameFree(u.Username, ""); err != nil {
		return nil, err
	}
	now := g.now().UTC()
	out := *u
	out.ID = uuid.NewString()
	out.CreatedAt, out.UpdatedAt = now, now
	g.users[out.ID] = &out
	res := out
	return &res, nil
}

func (g *Gateway) usernameFree(username, except string) error {
	for id, u := range g.users {
		if id != except && strings.EqualFold(u.Username, username) {
			return fmt.Errorf("%w: username %q is taken", gateway.ErrConflict, username)
		}
	}
	return nil
}

func (g *Gateway) GetUser(ctx context.Context, id string) (*models.UserProfile, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("GetUser"); err != nil {
		return nil, err
	}
	u, ok := g.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, gateway.ErrNotFound)
	}
	out := *u
	return &out, nil
}

func (g *Gateway) UpdateUser(ctx context.Context, u *models.UserProfile) (*models.UserProfile, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("UpdateUser"); err != nil {
		return nil, err
	}
	cur, ok := g.users[u.ID]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", u.ID, gateway.ErrNotFound)
	}
	if err := g.usernameFree(u.Username, u.ID); err != nil {
		return nil, err
	}
	cur.Name, cur.Username, cur.Email, cur.Bio = u.Name, u.Username, u.Email, u.Bio
	cur.ImageURL, cur.ImageID = u.ImageURL, u.ImageID
	cur.UpdatedAt = g.now().UTC()
	out := *cur
	return &out, nil
}

func (g *Gateway) ListUsers(ctx context.Context, q gateway.Query) ([]models.UserProfile, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("ListUsers"); err != nil {
		return nil, err
	}
	if err := gateway.UserFields.Check(q); err != nil {
		return nil, err
	}
	all := make([]models.UserProfile, 0, len(g.users))
	for _, u := range g.users {
		all = append(all, *u)
	}
	return apply(all, q, documentOf[models.UserProfile]{
		id:      func(u models.UserProfile) string { return u.ID },
		created: func(u models.UserProfile) time.Time { return u.CreatedAt },
		updated: func(u models.UserProfile) time.Time { return u.UpdatedAt },
		match: func(u models.UserProfile, f gateway.Filter) bool {
			switch f.Field {
			case gateway.FieldAccountID:
				return u.AccountID == f.Value
			case "username":
				return strings.EqualFold(u.Username, f.Value)
			case "name":
				return containsWords(u.Name, f.Value)
			}
			return false
		},
	})
}

func (g *Gateway) CreatePost(ctx context.Context, p *models.Post) (*models.Post, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("CreatePost"); err != nil {
		return nil, err
	}
	if _, ok := g.users[p.CreatorID]; !ok {
		return nil, gateway.Invalidf("unknown creator %q", p.CreatorID)
	}
	now := g.now().UTC()
	out := clonePost(p)
	out.ID = uuid.NewString()
	out.LikerIDs = gateway.DedupIDs(p.LikerIDs)
	out.Revision = 1
	out.CreatedAt, out.UpdatedAt = now, now
	g.posts[out.ID] = out
	return clonePost(out), nil
}

func (g *Gateway) GetPost(ctx context.Context, id string) (*models.Post, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("GetPost"); err != nil {
		return nil, err
	}
	p, ok := g.posts[id]
	if !ok {
		return nil, fmt.Errorf("post %s: %w", id, gateway.ErrNotFound)
	}
	return clonePost(p), nil
}

func (g *Gateway) UpdatePost(ctx context.Context, p *models.Post) (*models.Post, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("UpdatePost"); err != nil {
		return nil, err
	}
	cur, ok := g.posts[p.ID]
	if !ok {
		return nil, fmt.Errorf("post %s: %w", p.ID, gateway.ErrNotFound)
	}
	cur.Caption, cur.Location = p.Caption, p.Location
	cur.ImageURL, cur.ImageID = p.ImageURL, p.ImageID
	cur.Tags = slices.Clone(p.Tags)
	cur.Revision++
	cur.UpdatedAt = g.now().UTC()
	return clonePost(cur), nil
}

func (g *Gateway) DeletePost(ctx context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("DeletePost"); err != nil {
		return err
	}
	if _, ok := g.posts[id]; !ok {
		return fmt.Errorf("post %s: %w", id, gateway.ErrNotFound)
	}
	delete(g.posts, id)
	for sid, s := range g.saves {
		if s.PostID == id {
			delete(g.saves, sid)
		}
	}
	return nil
}

func (g *Gateway) ListPosts(ctx context.Context, q gateway.Query) ([]models.Post, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("ListPosts"); err != nil {
		return nil, err
	}
	if err := gateway.PostFields.Check(q); err != nil {
		return nil, err
	}
	all := make([]models.Post, 0, len(g.posts))
	for _, p := range g.posts {
		all = append(all, *clonePost(p))
	}
	return apply(all, q, documentOf[models.Post]{
		id:      func(p models.Post) string { return p.ID },
		created: func(p models.Post) time.Time { return p.CreatedAt },
		updated: func(p models.Post) time.Time { return p.UpdatedAt },
		match: func(p models.Post, f gateway.Filter) bool {
			switch f.Field {
			case gateway.FieldCreator:
				return p.CreatorID == f.Value
			case gateway.FieldLikes:
				return slices.Contains(p.LikerIDs, f.Value)
			case gateway.FieldCaption:
				return containsWords(p.Caption, f.Value)
			}
			return false
		},
	})
}

func (g *Gateway) UpdateLikes(ctx context.Context, postID string, likerIDs []string, revision int64) (*models.Post, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("UpdateLikes"); err != nil {
		return nil, err
	}
	cur, ok := g.posts[postID]
	if !ok {
		return nil, fmt.Errorf("post %s: %w", postID, gateway.ErrNotFound)
	}
	if revision != 0 && cur.Revision != revision {
		return nil, fmt.Errorf("%w: post %s is at revision %d, not %d", gateway.ErrConflict, postID, cur.Revision, revision)
	}
	cur.LikerIDs = gateway.DedupIDs(likerIDs)
	cur.Revision++
	cur.UpdatedAt = g.now().UTC()
	return clonePost(cur), nil
}

func (g *Gateway) CreateSave(ctx context.Context, userID, postID string) (*models.SaveRecord, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("CreateSave"); err != nil {
		return nil, err
	}
	if _, ok := g.posts[postID]; !ok {
		return nil, gateway.Invalidf("unknown post %q", postID)
	}
	if _, ok := g.users[userID]; !ok {
		return nil, gateway.Invalidf("unknown user %q", userID)
	}
	for _, s := range g.saves {
		if s.UserID == userID && s.PostID == postID {
			return nil, fmt.Errorf("%w: post %s already saved", gateway.ErrConflict, postID)
		}
	}
	s := &models.SaveRecord{ID: uuid.NewString(), UserID: userID, PostID: postID, CreatedAt: g.now().UTC()}
	g.saves[s.ID] = s
	out := *s
	return &out, nil
}

func (g *Gateway) DeleteSave(ctx context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("DeleteSave"); err != nil {
		return err
	}
	if _, ok := g.saves[id]; !ok {
		return fmt.Errorf("save %s: %w", id, gateway.ErrNotFound)
	}
	delete(g.saves, id)
	return nil
}

func (g *Gateway) ListSaves(ctx context.Context, q gateway.Query) ([]models.SaveRecord, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("ListSaves"); err != nil {
		return nil, err
	}
	if err := gateway.SaveFields.Check(q); err != nil {
		return nil, err
	}
	all := make([]models.SaveRecord, 0, len(g.saves))
	for _, s := range g.saves {
		all = append(all, *s)
	}
	return apply(all, q, documentOf[models.SaveRecord]{
		id:      func(s models.SaveRecord) string { return s.ID },
		created: func(s models.SaveRecord) time.Time { return s.CreatedAt },
		updated: func(s models.SaveRecord) time.Time { return s.CreatedAt },
		match: func(s models.SaveRecord, f gateway.Filter) bool {
			switch f.Field {
			case gateway.FieldUser:
				return s.UserID == f.Value
			case gateway.FieldPost:
				return s.PostID == f.Value
			}
			return false
		},
	})
}

func (g *Gateway) CreateFile(ctx context.Context, name string, r io.Reader) (*models.StoredFile, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("CreateFile"); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, gateway.Invalidf("empty file")
	}
	f := &file{
		meta: models.StoredFile{
			ID:          uuid.NewString(),
			Name:        name,
			ContentType: http.DetectContentType(data),
			Size:        int64(len(data)),
			CreatedAt:   g.now().UTC(),
		},
		data: bytes.Clone(data),
	}
	g.files[f.meta.ID] = f
	out := f.meta
	return &out, nil
}

func (g *Gateway) FilePreview(ctx context.Context, id string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("FilePreview"); err != nil {
		return "", err
	}
	if _, ok := g.files[id]; !ok {
		return "", fmt.Errorf("file %s: %w", id, gateway.ErrNotFound)
	}
	return gateway.PreviewURL(g.baseURL, id), nil
}

func (g *Gateway) DeleteFile(ctx context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("DeleteFile"); err != nil {
		return err
	}
	if _, ok := g.files[id]; !ok {
		return fmt.Errorf("file %s: %w", id, gateway.ErrNotFound)
	}
	delete(g.files, id)
	return nil
}

// FileCount reports the number of stored files.
func (g *Gateway) FileCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.files)
}

func (g *Gateway) InitialsURL(name string) string {
	return gateway.InitialsURL(g.baseURL, name)
}

type documentOf[T any] struct {
	id      func(T) string
	created func(T) time.Time
	updated func(T) time.Time
	match   func(T, gateway.Filter) bool
}

// apply filters, orders, positions after the cursor and limits docs.
func apply[T any](docs []T, q gateway.Query, d documentOf[T]) ([]T, error) {
	out := docs[:0]
	for _, doc := range docs {
		ok := true
		for _, f := range q {
			if (f.Method == gateway.MethodEqual || f.Method == gateway.MethodSearch) && !d.match(doc, f) {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, doc)
		}
	}

	key := d.created
	desc := false
	switch q.Order() {
	case gateway.FieldUpdatedAt:
		key, desc = d.updated, true
	case gateway.FieldCreatedAt:
		desc = true
	}
	slices.SortFunc(out, func(a, b T) int {
		c := key(a).Compare(key(b))
		if c == 0 {
			c = cmp.Compare(d.id(a), d.id(b))
		}
		if desc {
			return -c
		}
		return c
	})

	if cursor := q.Cursor(); cursor != "" {
		i := slices.IndexFunc(out, func(doc T) bool { return d.id(doc) == cursor })
		if i < 0 {
			return nil, gateway.Invalidf("cursor %q not found", cursor)
		}
		out = out[i+1:]
	}
	if n := q.LimitOr(defaultLimit); len(out) > n {
		out = out[:n]
	}
	return slices.Clone(out), nil
}

// containsWords reports whether every word of term occurs in text.
func containsWords(text, term string) bool {
	text = strings.ToLower(text)
	words := strings.Fields(strings.ToLower(term))
	if len(words) == 0 {
		return false
	}
	for _, w := range words {
		if !strings.Contains(text, w) {
			return false
		}
	}
	return true
}

func clonePost(p *models.Post) *models.Post {
	out := *p
	out.Tags = slices.Clone(p.Tags)
	out.LikerIDs = slices.Clone(p.LikerIDs)
	return &out
}
