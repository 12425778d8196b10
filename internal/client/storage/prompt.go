package storage

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/couplegram/couplegram/internal/models"
)

// Prompter asks for form input line by line.
type Prompter struct {
	in  *bufio.Scanner
	out io.Writer
}

// NewPrompter reads answers from in and writes labels to out.
func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{in: bufio.NewScanner(in), out: out}
}

// Ask prints label and returns the trimmed answer. It returns io.EOF once
// the input is exhausted.
func (p *Prompter) Ask(label string) (string, error) {
	fmt.Fprintf(p.out, "%s: ", label)
	if !p.in.Scan() {
		if err := p.in.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return strings.TrimSpace(p.in.Text()), nil
}

// AskDefault is Ask with a value kept when the answer is empty.
func (p *Prompter) AskDefault(label, current string) (string, error) {
	v, err := p.Ask(fmt.Sprintf("%s [%s]", label, current))
	if err != nil || v == "" {
		return current, err
	}
	return v, nil
}

// Line reads the next raw input line.
func (p *Prompter) Line() (string, bool) {
	if !p.in.Scan() {
		return "", false
	}
	return p.in.Text(), true
}

func (p *Prompter) askAll(labels []string, dst ...*string) error {
	for i, l := range labels {
		v, err := p.Ask(l)
		if err != nil {
			return err
		}
		*dst[i] = v
	}
	return nil
}

// PromptNewUser asks for the sign-up form.
func (p *Prompter) PromptNewUser() (models.NewUser, error) {
	var u models.NewUser
	err := p.askAll([]string{"Name", "Username", "Email", "Password"}, &u.Name, &u.Username, &u.Email, &u.Password)
	return u, err
}

// PromptNewPost asks for the create-post form. The image is opened from
// disk; the caller closes the returned file.
func (p *Prompter) PromptNewPost(creatorID string) (models.NewPost, io.Closer, error) {
	np := models.NewPost{CreatorID: creatorID}
	var path string
	if err := p.askAll([]string{"Image path", "Caption", "Location", "Tags (comma separated)"},
		&path, &np.Caption, &np.Location, &np.Tags); err != nil {
		return np, nil, err
	}
	f, err := OpenImage(path)
	if err != nil {
		return np, nil, err
	}
	np.File = models.File{Name: filepath.Base(path), Reader: f}
	return np, f, nil
}

// PromptUpdatePost asks for the edit-post form, prefilled from post. An
// empty image path keeps the current image.
func (p *Prompter) PromptUpdatePost(post *models.Post) (models.UpdatePost, io.Closer, error) {
	up := models.UpdatePost{PostID: post.ID, ImageURL: post.ImageURL, ImageID: post.ImageID}
	var err error
	if up.Caption, err = p.AskDefault("Caption", post.Caption); err != nil {
		return up, nil, err
	}
	if up.Location, err = p.AskDefault("Location", post.Location); err != nil {
		return up, nil, err
	}
	if up.Tags, err = p.AskDefault("Tags", strings.Join(post.Tags, ",")); err != nil {
		return up, nil, err
	}
	file, closer, err := p.askImage()
	up.File = file
	return up, closer, err
}

// PromptUpdateUser asks for the edit-profile form, prefilled from u.
func (p *Prompter) PromptUpdateUser(u *models.UserProfile) (models.UpdateUser, io.Closer, error) {
	uu := models.UpdateUser{UserID: u.ID, Email: u.Email, ImageURL: u.ImageURL, ImageID: u.ImageID}
	var err error
	if uu.Name, err = p.AskDefault("Name", u.Name); err != nil {
		return uu, nil, err
	}
	if uu.Username, err = p.AskDefault("Username", u.Username); err != nil {
		return uu, nil, err
	}
	if uu.Bio, err = p.AskDefault("Bio", u.Bio); err != nil {
		return uu, nil, err
	}
	file, closer, err := p.askImage()
	uu.File = file
	return uu, closer, err
}

func (p *Prompter) askImage() (*models.File, io.Closer, error) {
	path, err := p.Ask("New image path (empty keeps the current one)")
	if err != nil || path == "" {
		return nil, nil, err
	}
	f, err := OpenImage(path)
	if err != nil {
		return nil, nil, err
	}
	return &models.File{Name: filepath.Base(path), Reader: f}, f, nil
}

// OpenImage opens a local image for upload.
func OpenImage(path string) (*os.File, error) {
	if path == "" {
		return nil, fmt.Errorf("image path is required")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %q: %w", path, err)
	}
	return f, nil
}
