package gitlines

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
)

const zipContentType = "application/zip"

// errArchiveTooLarge reports an archive at or above the configured size limit.
var errArchiveTooLarge = errors.New("archive too large")

// fetchError is a download failure with a user-facing explanation.
type fetchError struct {
	reply string
	cause error
}

func (e *fetchError) Error() string {
	if e.cause == nil {
		return e.reply
	}

	return e.reply + ": " + e.cause.Error()
}

func (e *fetchError) Unwrap() error {
	return e.cause
}

// repoRef names one repository snapshot.
type repoRef struct {
	repo   string
	branch string
}

func (r repoRef) String() string {
	return r.repo + "/" + r.branch
}

// parseRepoRef splits `owner/name[/branch]`.
func parseRepoRef(raw string, defaultBranch string) repoRef {
	raw = strings.Trim(strings.TrimSpace(raw), "/")
	if strings.Count(raw, "/") == 2 {
		cut := strings.LastIndex(raw, "/")
		return repoRef{repo: raw[:cut], branch: raw[cut+1:]}
	}

	return repoRef{repo: raw, branch: defaultBranch}
}

// archiveURL is the GitHub zip snapshot location of ref.
func archiveURL(baseURL string, ref repoRef) string {
	return fmt.Sprintf("%s/%s/archive/%s.zip", strings.TrimRight(baseURL, "/"), ref.repo, ref.branch)
}

// downloadArchive fetches a zip snapshot no larger than maxBytes.
func downloadArchive(ctx context.Context, client *http.Client, url string, ref repoRef, maxBytes int64) ([]byte, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("new archive request: %w", err)
	}

	response, err := client.Do(request)
	if err != nil {
		return nil, fmt.Errorf("download archive %s: %w", ref, err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return nil, &fetchError{
			reply: fmt.Sprintf("Failed to find repo %q (%d).", ref.String(), response.StatusCode),
		}
	}

	contentType := response.Header.Get("Content-Type")
	if mediaType, _, err := mime.ParseMediaType(contentType); err != nil || mediaType != zipContentType {
		return nil, &fetchError{reply: fmt.Sprintf("Invalid response (CT: %s).", contentType)}
	}

	if response.ContentLength >= maxBytes {
		return nil, &fetchError{
			reply: fmt.Sprintf("Repo too big (%.2fMB).", megabytes(response.ContentLength)),
			cause: errArchiveTooLarge,
		}
	}

	body, err := io.ReadAll(io.LimitReader(response.Body, maxBytes))
	if err != nil {
		return nil, fmt.Errorf("read archive %s: %w", ref, err)
	}
	if int64(len(body)) >= maxBytes {
		return nil, &fetchError{
			reply: fmt.Sprintf("Repo too big (over %.2fMB).", megabytes(maxBytes)),
			cause: errArchiveTooLarge,
		}
	}

	return body, nil
}

func megabytes(size int64) float64 {
	return float64(size) / (1024 * 1024)
}
