package openai

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nghyane/query-gateway/internal/api/handlers"
	log "github.com/nghyane/query-gateway/internal/logging"
	"github.com/nghyane/query-gateway/internal/target"
	"github.com/nghyane/query-gateway/internal/translate"
	"golang.org/x/sync/errgroup"
)

// ListModels exposes agents, teams, models and tools as model ids. The four
// kinds are listed concurrently; a kind whose listing fails is logged and
// contributes nothing.
func (h *Handler) ListModels(c *gin.Context) {
	ctx := c.Request.Context()
	ns := h.namespace()
	ownedBy := h.ownedBy()

	perKind := make([][]translate.ModelEntry, len(target.Kinds))
	var g errgroup.Group
	for i, kind := range target.Kinds {
		g.Go(func() error {
			objects, err := h.store.List(ctx, kind.ResourceKind(), ns)
			if err != nil {
				log.WithError(err).Errorf("Failed to list %s", kind.ResourceKind())
				if h.metrics != nil {
					h.metrics.ObserveModelListError(string(kind.ResourceKind()))
				}
				return nil
			}
			perKind[i] = translate.ModelEntries(kind, objects, ownedBy)
			return nil
		})
	}
	_ = g.Wait()

	var entries []translate.ModelEntry
	for _, e := range perKind {
		entries = append(entries, e...)
	}
	handlers.RespondJSON(c, http.StatusOK, translate.NewModelList(entries))
}
