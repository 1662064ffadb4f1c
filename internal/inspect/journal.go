package inspect

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/hashgraph/hedera-services-sub037/internal/eventstream"
	"github.com/hashgraph/hedera-services-sub037/internal/metrics"
	"github.com/hashgraph/hedera-services-sub037/internal/recovery"
)

// JournalHandler exposes read-only HTTP endpoints over one journal directory.
type JournalHandler struct {
	dir    string
	mode   eventstream.Mode
	logger *zap.Logger
}

// NewJournalHandler creates a JournalHandler for dir. tolerant accepts a
// truncated tail on the last journal file.
func NewJournalHandler(dir string, tolerant bool, logger *zap.Logger) *JournalHandler {
	mode := eventstream.Strict
	if tolerant {
		mode = eventstream.Tolerant
	}
	return &JournalHandler{dir: dir, mode: mode, logger: logger}
}

// Register mounts the journal routes on the given router group.
func (h *JournalHandler) Register(rg *gin.RouterGroup) {
	j := rg.Group("/journal")
	{
		j.GET("", h.Overview)
		j.GET("/verify", h.Verify)
		j.GET("/rounds/:round", h.GetRound)
	}
}

type fileSummary struct {
	Name      string    `json:"name"`
	StartTime time.Time `json:"start_time"`
	Size      int64     `json:"size"`
}

type eventSummary struct {
	Creator            uint64           `json:"creator"`
	ConsensusTimestamp time.Time        `json:"consensus_timestamp"`
	LastInRound        bool             `json:"last_in_round"`
	PayloadSize        int              `json:"payload_size"`
	Hash               eventstream.Hash `json:"hash"`
	RunningHash        eventstream.Hash `json:"running_hash"`
}

type roundSummary struct {
	Round              uint64           `json:"round"`
	Complete           bool             `json:"complete"`
	FirstTimestamp     time.Time        `json:"first_timestamp"`
	ConsensusTimestamp time.Time        `json:"consensus_timestamp"`
	Digest             eventstream.Hash `json:"digest"`
	Events             []eventSummary   `json:"events"`
}

func (h *JournalHandler) options(extra ...eventstream.Option) []eventstream.Option {
	return append([]eventstream.Option{
		eventstream.WithMode(h.mode),
		eventstream.WithLogger(h.logger),
	}, extra...)
}

// Overview handles GET /journal: the journal files and the rounds they span.
func (h *JournalHandler) Overview(c *gin.Context) {
	paths, err := eventstream.ListFiles(h.dir)
	if err != nil {
		h.logger.Error("list journal files", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list journal files"})
		return
	}

	files := make([]fileSummary, 0, len(paths))
	for _, p := range paths {
		s := fileSummary{Name: filepath.Base(p)}
		if ts, err := eventstream.ParseFileName(p); err == nil {
			s.StartTime = ts
		}
		if info, err := os.Stat(p); err == nil {
			s.Size = info.Size()
		}
		files = append(files, s)
	}

	resp := gin.H{"files": files}
	if len(paths) == 0 {
		c.JSON(http.StatusOK, resp)
		return
	}

	first, last, err := h.span(paths)
	if err != nil {
		resp["readable"] = false
		resp["error"] = err.Error()
		c.JSON(http.StatusOK, resp)
		return
	}
	resp["readable"] = true
	if first != nil {
		resp["first_round"] = first.Round
		resp["first_timestamp"] = first.ConsensusTimestamp
	}
	if last != nil {
		resp["last_round"] = last.Round
		resp["last_timestamp"] = last.ConsensusTimestamp
	}
	c.JSON(http.StatusOK, resp)
}

// span returns the first event of the first file and the last event of the
// final file. Either is nil when that file holds no events.
func (h *JournalHandler) span(paths []string) (first, last *eventstream.Event, err error) {
	final := len(paths) - 1
	modeFor := func(i int) eventstream.Mode {
		if i == final {
			return h.mode
		}
		return eventstream.Strict
	}

	f, err := eventstream.OpenFile(paths[0], modeFor(0))
	if err != nil {
		return nil, nil, err
	}
	first, _, err = f.Peek()
	f.Close()
	if err != nil {
		return nil, nil, err
	}

	f, err = eventstream.OpenFile(paths[final], modeFor(final))
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	for {
		e, ok, err := f.Next()
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			break
		}
		last = e
	}
	return first, last, nil
}

func boundFromQuery(c *gin.Context) (eventstream.Bound, error) {
	fromRound, fromTime := c.Query("from_round"), c.Query("from_time")
	switch {
	case fromRound != "" && fromTime != "":
		return eventstream.Bound{}, errors.New("from_round and from_time are mutually exclusive")
	case fromRound != "":
		r, err := strconv.ParseInt(fromRound, 10, 64)
		if err != nil {
			return eventstream.Bound{}, fmt.Errorf("from_round: %w", err)
		}
		return eventstream.ByRound(r)
	case fromTime != "":
		ts, err := time.Parse(time.RFC3339Nano, fromTime)
		if err != nil {
			return eventstream.Bound{}, fmt.Errorf("from_time: %w", err)
		}
		return eventstream.ByTimestamp(ts)
	}
	return eventstream.Unbounded(), nil
}

// Verify handles GET /journal/verify: walks the chain from the requested
// bound and reports its integrity.
func (h *JournalHandler) Verify(c *gin.Context) {
	b, err := boundFromQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	files := 0
	chain, err := eventstream.OpenChain(h.dir, b, h.options(eventstream.WithFileObserver(func(path string) {
		files++
		metrics.RecordFileOpened(path)
	}))...)
	if errors.Is(err, eventstream.ErrBoundNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		h.invalid(c, err, 0)
		return
	}
	defer chain.Close()

	var first, last *eventstream.Event
	for {
		e, ok, err := chain.Next()
		if err != nil {
			h.invalid(c, err, chain.EventsRead())
			return
		}
		if !ok {
			break
		}
		if first == nil {
			first = e
		}
		last = e
	}

	resp := gin.H{
		"valid":        true,
		"bound":        b.String(),
		"files":        files,
		"events":       chain.EventsRead(),
		"running_hash": chain.RunningHash(),
	}
	if first != nil {
		resp["first_round"] = first.Round
		resp["last_round"] = last.Round
	}
	c.JSON(http.StatusOK, resp)
}

func (h *JournalHandler) invalid(c *gin.Context, err error, events int) {
	metrics.RecordIntegrityFailure(err)
	h.logger.Warn("journal integrity check failed", zap.Error(err))
	c.JSON(http.StatusOK, gin.H{
		"valid":  false,
		"kind":   metrics.FailureKind(err),
		"error":  err.Error(),
		"events": events,
	})
}

// GetRound handles GET /journal/rounds/:round: one round and its events.
func (h *JournalHandler) GetRound(c *gin.Context) {
	n, err := strconv.ParseInt(c.Param("round"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "round must be a positive integer"})
		return
	}
	b, err := eventstream.ByRound(n)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "round must be a positive integer"})
		return
	}

	rounds, err := eventstream.OpenRounds(h.dir, b, true, h.options()...)
	if errors.Is(err, eventstream.ErrBoundNotFound) || errors.Is(err, eventstream.ErrRoundNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "round not found"})
		return
	}
	if err != nil {
		h.readFailed(c, err)
		return
	}
	defer rounds.Close()

	round, ok, err := rounds.Next()
	if err != nil {
		h.readFailed(c, err)
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "round not found"})
		return
	}

	resp := roundSummary{
		Round:              round.Number,
		Complete:           round.Complete(),
		FirstTimestamp:     round.FirstTimestamp(),
		ConsensusTimestamp: round.ConsensusTimestamp(),
		Digest:             recovery.AccumulateDigest(eventstream.ZeroHash, round),
		Events:             make([]eventSummary, 0, len(round.Events)),
	}
	for _, e := range round.Events {
		resp.Events = append(resp.Events, eventSummary{
			Creator:            e.Creator,
			ConsensusTimestamp: e.ConsensusTimestamp,
			LastInRound:        e.LastInRound,
			PayloadSize:        len(e.Payload),
			Hash:               e.Hash,
			RunningHash:        e.RunningHash,
		})
	}
	c.JSON(http.StatusOK, resp)
}

func (h *JournalHandler) readFailed(c *gin.Context, err error) {
	metrics.RecordIntegrityFailure(err)
	h.logger.Warn("journal read failed", zap.Error(err))
	c.JSON(http.StatusUnprocessableEntity, gin.H{
		"error": err.Error(),
		"kind":  metrics.FailureKind(err),
	})
}
