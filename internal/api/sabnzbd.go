package api

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/bridgarr/bridgarr/internal/errors"
	"github.com/bridgarr/bridgarr/internal/provider"
	"github.com/bridgarr/bridgarr/internal/release"
	"github.com/bridgarr/bridgarr/internal/status"
)

var payloadMetaPattern = regexp.MustCompile(`<meta type="` + payloadMetaType + `">([^<]+)</meta>`)

func (s *Server) handleSabnzbd(w http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("mode")

	if mode == "version" {
		writeJSON(w, http.StatusOK, map[string]string{"version": version})
		return
	}

	if !s.authorized(r) {
		writeJSON(w, http.StatusOK, map[string]any{"status": false, "error": "API Key Incorrect"})
		return
	}

	switch mode {
	case "queue":
		if r.URL.Query().Get("name") == "delete" {
			s.handleDelete(w, r)
			return
		}
		s.handleQueue(w, r)
	case "history":
		if r.URL.Query().Get("name") == "delete" {
			s.handleDelete(w, r)
			return
		}
		s.handleHistory(w, r)
	case "addurl":
		s.handleAddURL(w, r)
	case "addfile":
		s.handleAddFile(w, r)
	case "get_config", "config":
		s.handleConfig(w)
	case "fullstatus":
		s.handleFullStatus(w)
	case "auth":
		writeJSON(w, http.StatusOK, map[string]string{"auth": "apikey"})
	default:
		writeJSON(w, http.StatusOK, map[string]any{"status": false, "error": "not implemented"})
	}
}

type queueSlot struct {
	Index      int    `json:"index"`
	NzoID      string `json:"nzo_id"`
	Filename   string `json:"filename"`
	Cat        string `json:"cat"`
	Status     string `json:"status"`
	Percentage string `json:"percentage"`
	MB         string `json:"mb"`
	MBLeft     string `json:"mbleft"`
	Size       string `json:"size"`
	SizeLeft   string `json:"sizeleft"`
	TimeLeft   string `json:"timeleft"`
	ETA        string `json:"eta"`
	Priority   string `json:"priority"`
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	jobs := s.registry.Queue()

	slots := make([]queueSlot, 0, len(jobs))
	overall := "Idle"
	var totalSpeed int64

	for i, job := range jobs {
		if job.State == status.Downloading || job.State == status.Extracting {
			overall = "Downloading"
		}
		totalSpeed += job.Speed

		left := job.SizeTotal - job.SizeLoaded
		if left < 0 {
			left = 0
		}

		slots = append(slots, queueSlot{
			Index:      i,
			NzoID:      job.NzoID,
			Filename:   job.Title,
			Cat:        job.Label,
			Status:     job.State.Display(),
			Percentage: strconv.Itoa(int(job.Progress())),
			MB:         megabytes(job.SizeTotal),
			MBLeft:     megabytes(left),
			Size:       humanSize(job.SizeTotal),
			SizeLeft:   humanSize(left),
			TimeLeft:   timeleft(job.ETA),
			ETA:        timeleft(job.ETA),
			Priority:   "Normal",
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"queue": map[string]any{
			"status":     overall,
			"paused":     false,
			"speedlimit": "0",
			"kbpersec":   fmt.Sprintf("%.2f", float64(totalSpeed)/1024),
			"speed":      humanSize(totalSpeed),
			"noofslots":  len(slots),
			"slots":      slots,
		},
	})
}

type historySlot struct {
	NzoID        string `json:"nzo_id"`
	Name         string `json:"name"`
	Category     string `json:"category"`
	Status       string `json:"status"`
	Size         string `json:"size"`
	Bytes        int64  `json:"bytes"`
	Storage      string `json:"storage"`
	FailMessage  string `json:"fail_message"`
	Completed    int64  `json:"completed"`
	DownloadTime int64  `json:"download_time"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	// History reads double as the cleanup trigger: already-imported and
	// long-failed jobs are pruned before answering.
	s.registry.CleanupStale()

	jobs := s.registry.History()

	slots := make([]historySlot, 0, len(jobs))
	for _, job := range jobs {
		slot := historySlot{
			NzoID:       job.NzoID,
			Name:        job.Title,
			Category:    job.Label,
			Status:      job.State.Display(),
			Size:        humanSize(job.SizeTotal),
			Bytes:       job.SizeTotal,
			Storage:     job.OutputPath,
			FailMessage: job.ErrorReason,
		}
		if !job.CompletedAt.IsZero() {
			slot.Completed = job.CompletedAt.Unix()
			slot.DownloadTime = int64(job.CompletedAt.Sub(job.CreatedAt).Seconds())
		}

		slots = append(slots, slot)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"history": map[string]any{
			"noofslots": len(slots),
			"slots":     slots,
		},
	})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	value := r.URL.Query().Get("value")
	ctx := r.Context()

	var err error
	if value == "all" {
		err = s.registry.DeleteAll(ctx)
	} else {
		for _, id := range strings.Split(value, ",") {
			id = strings.TrimSpace(id)
			if id == "" {
				continue
			}
			if derr := s.registry.Delete(ctx, id); derr != nil {
				err = derr
			}
		}
	}

	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"status": false, "error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": true})
}

// handleAddURL accepts a grab by its retrieval URL. The payload rides in the
// URL's query string, so nothing is fetched.
func (s *Server) handleAddURL(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("name")
	if raw == "" {
		writeJSON(w, http.StatusOK, map[string]any{"status": false, "error": "missing name parameter"})
		return
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		s.log.Warn().Err(errors.NewRequestError(err, "addurl")).Msg("rejected grab")
		writeJSON(w, http.StatusOK, map[string]any{"status": false, "error": "malformed url"})
		return
	}

	s.accept(w, r, parsed.Query().Get("payload"))
}

// handleAddFile accepts a grab as an uploaded NZB document and recovers the
// payload from its head metadata.
func (s *Server) handleAddFile(w http.ResponseWriter, r *http.Request) {
	body, err := readUpload(r)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"status": false, "error": "missing nzb upload"})
		return
	}

	m := payloadMetaPattern.FindSubmatch(body)
	if m == nil {
		writeJSON(w, http.StatusOK, map[string]any{"status": false, "error": "nzb carries no retrieval payload"})
		return
	}

	s.accept(w, r, string(m[1]))
}

// accept decodes a retrieval payload, re-verifies its links and submits the
// surviving set. A grab with zero live links is rejected, never queued.
func (s *Server) accept(w http.ResponseWriter, r *http.Request, encoded string) {
	p, err := release.DecodePayload(encoded)
	if err != nil {
		s.log.Warn().Err(errors.NewRequestError(errors.ErrInvalidRequest, "payload")).Msg("rejected grab with undecodable payload")
		writeJSON(w, http.StatusOK, map[string]any{"status": false, "error": "invalid retrieval payload"})
		return
	}

	ctx := r.Context()

	candidates := make([]provider.CandidateLink, len(p.Links))
	for i, u := range p.Links {
		candidates[i] = provider.CandidateLink{ID: int64(i), URL: u}
	}

	verified, err := s.verifier.VerifyAll(ctx, candidates)
	if err != nil {
		s.log.Error().Str("id", p.ID).Err(err).Msg("pre-submission verification failed")
		writeJSON(w, http.StatusOK, map[string]any{"status": false, "error": "link verification unavailable"})
		return
	}

	if len(verified) == 0 {
		writeJSON(w, http.StatusOK, map[string]any{"status": false, "error": errors.ErrNoValidLinks.Error()})
		return
	}

	live := make([]string, len(verified))
	for i, vc := range verified {
		live[i] = vc.URL
	}
	p.Links = live

	label := r.URL.Query().Get("cat")
	if label == "" {
		label = labelForCategory(p.Category)
	}

	job, err := s.registry.Submit(ctx, p, p.Size, label)
	if err != nil {
		msg := "failed to submit job"
		if errors.IsAuth(err) {
			msg = "download engine authentication failed"
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": false, "error": msg})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  true,
		"nzo_ids": []string{job.NzoID},
	})
}

func (s *Server) handleConfig(w http.ResponseWriter) {
	categories := []map[string]string{
		{"name": "*", "dir": ""},
		{"name": "movies", "dir": "movies"},
		{"name": "tv", "dir": "tv"},
		{"name": "audio", "dir": "audio"},
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"config": map[string]any{
			"misc": map[string]any{
				"complete_dir":      s.opts.OutputDir,
				"pre_check":         false,
				"history_retention": "0",
			},
			"categories": categories,
		},
	})
}

func (s *Server) handleFullStatus(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": map[string]any{
			"completeDir": s.opts.OutputDir,
			"version":     version,
			"paused":      false,
		},
	})
}

func readUpload(r *http.Request) ([]byte, error) {
	if err := r.ParseMultipartForm(8 << 20); err == nil {
		for _, field := range []string{"name", "nzbfile"} {
			file, _, ferr := r.FormFile(field)
			if ferr != nil {
				continue
			}
			defer file.Close()
			return io.ReadAll(file)
		}
	}

	body, err := io.ReadAll(r.Body)
	if err != nil || len(body) == 0 {
		return nil, fmt.Errorf("no upload present")
	}

	return body, nil
}

// labelForCategory maps a category code to the output label when the client
// did not name one.
func labelForCategory(cat int) string {
	switch {
	case cat >= 3000 && cat < 4000:
		return "audio"
	case cat >= 5000 && cat < 6000:
		return "tv"
	default:
		return "movies"
	}
}

func megabytes(b int64) string {
	return fmt.Sprintf("%.2f", float64(b)/1024/1024)
}

func humanSize(b int64) string {
	switch {
	case b >= 1<<30:
		return fmt.Sprintf("%.2f GB", float64(b)/(1<<30))
	case b >= 1<<20:
		return fmt.Sprintf("%.2f MB", float64(b)/(1<<20))
	case b > 0:
		return fmt.Sprintf("%.2f KB", float64(b)/(1<<10))
	default:
		return "0"
	}
}

func timeleft(etaSeconds int64) string {
	if etaSeconds <= 0 {
		return "0:00:00"
	}

	h := etaSeconds / 3600
	m := (etaSeconds % 3600) / 60
	sec := etaSeconds % 60

	return fmt.Sprintf("%d:%02d:%02d", h, m, sec)
}
