package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/alanyoungcy/venuearb/internal/domain"
)

const defaultDepth = 20

// BookHandler serves order books, from the local registry of a venue this
// process runs or, failing that, from the Redis mirror.
type BookHandler struct {
	venues map[string]Venue
	mirror domain.BookMirror
	logger *slog.Logger
}

// NewBookHandler creates a BookHandler. mirror may be nil.
func NewBookHandler(venues []Venue, mirror domain.BookMirror, logger *slog.Logger) *BookHandler {
	byName := make(map[string]Venue, len(venues))
	for _, v := range venues {
		byName[v.Name()] = v
	}
	return &BookHandler{
		venues: byName,
		mirror: mirror,
		logger: logger.With(slog.String("handler", "books")),
	}
}

type levelView struct {
	Price  string `json:"price"`
	Amount string `json:"amount"`
}

type sideView struct {
	SequenceID int64       `json:"sequence_id"`
	Levels     []levelView `json:"levels"`
}

// GetBook returns the top levels of both sides of a book. ?depth= limits the
// levels per side (default 20).
// GET /api/books/{venue}/{base}/{quote}
func (h *BookHandler) GetBook(w http.ResponseWriter, r *http.Request) {
	venue := r.PathValue("venue")
	pair := domain.NewPair(r.PathValue("base"), r.PathValue("quote"))
	depth := defaultDepth
	if v := r.URL.Query().Get("depth"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			depth = n
		}
	}

	out := map[string]any{"venue": venue, "pair": pair.String()}
	found := false
	for _, side := range []domain.BookSide{domain.SideAsks, domain.SideBids} {
		snap, err := h.load(r, venue, pair, side)
		switch {
		case err == nil:
			found = true
			out[string(side)] = view(snap, depth)
		case errors.Is(err, domain.ErrBookNotFound), errors.Is(err, domain.ErrNotFound):
			out[string(side)] = nil
		default:
			h.logger.Error("load book failed",
				slog.String("venue", venue),
				slog.String("pair", pair.String()),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to load book")
			return
		}
	}
	if !found {
		writeError(w, http.StatusNotFound, "book not found")
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *BookHandler) load(r *http.Request, venue string, pair domain.Pair, side domain.BookSide) (domain.Snapshot, error) {
	if v, ok := h.venues[venue]; ok {
		return v.Registry().Snapshot(pair, side)
	}
	if h.mirror != nil {
		return h.mirror.LoadSide(r.Context(), venue, pair, side)
	}
	return domain.Snapshot{}, domain.ErrNotFound
}

func view(snap domain.Snapshot, depth int) sideView {
	levels := snap.Levels
	if len(levels) > depth {
		levels = levels[:depth]
	}
	out := sideView{SequenceID: snap.SequenceID, Levels: make([]levelView, len(levels))}
	for i, l := range levels {
		out.Levels[i] = levelView{Price: l.Price().String(), Amount: l.BaseAmount().String()}
	}
	return out
}
