// Package validation holds input rules shared by the HTTP layer and the services.
package validation

import (
	"errors"
	"net/url"
	"strings"
	"unicode/utf8"

	"smedia/internal/models"
)

// Validation failures for post bodies.
var (
	ErrEmptyPost    = errors.New("Provide text or image.")
	ErrTextTooLong  = errors.New("Text too long (max 2000 chars).")
	ErrEmptyComment = errors.New("Comment text is required")
	ErrInvalidImage = errors.New("Image URL must be an http(s) URL")
)

// PostBody trims text and checks that the post carries text or an image and that
// the text fits. It returns the trimmed text.
func PostBody(text, imageURL string) (string, error) {
	text = strings.TrimSpace(text)
	imageURL = strings.TrimSpace(imageURL)

	if text == "" && imageURL == "" {
		return "", ErrEmptyPost
	}
	if utf8.RuneCountInString(text) > models.MaxPostTextLength {
		return "", ErrTextTooLong
	}
	if imageURL != "" {
		if err := ImageURL(imageURL); err != nil {
			return "", err
		}
	}
	return text, nil
}

// CommentText trims a comment and rejects it when nothing is left. Comments have
// no length limit; only post bodies are capped.
func CommentText(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyComment
	}
	return text, nil
}

// ImageURL accepts absolute http and https URLs and site-relative paths.
func ImageURL(raw string) error {
	if strings.HasPrefix(raw, "/") && !strings.HasPrefix(raw, "//") {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return ErrInvalidImage
	}
	return nil
}
