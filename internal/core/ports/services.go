package ports

import (
	"context"
	"io"
	"net/http"

	"github.com/banwatch/backend/internal/domain"
)

type SubmitInput struct {
	OwnerID  string
	SteamIDs []string
	Options  domain.CheckOptions
}

type SubmitFileInput struct {
	OwnerID  string
	File     io.Reader
	IDColumn string
	Options  domain.CheckOptions
}

type CheckService interface {
	Submit(ctx context.Context, input SubmitInput) (*domain.CheckTask, error)
	SubmitFile(ctx context.Context, input SubmitFileInput) (*domain.CheckTask, error)
	// GetTask returns the current snapshot. An empty ownerID is administrative
	// and bypasses owner scoping.
	GetTask(ctx context.Context, ownerID, taskID string) (*domain.CheckTask, error)
	ListTasks(ctx context.Context, ownerID string, limit int) ([]domain.CheckTask, error)
	// Shutdown waits for in-flight tasks to finish or the context to expire.
	Shutdown(ctx context.Context) error
}

// StatusClient performs one identifier's external classification call. The
// http client carries the proxy routing for this attempt; nil means direct.
type StatusClient interface {
	Check(ctx context.Context, steamID string, httpClient *http.Client) (domain.Verdict, string, error)
}
