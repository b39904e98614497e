package myjd

import (
	"context"
	"strings"

	"github.com/bridgarr/bridgarr/internal/bridge"
	"github.com/bridgarr/bridgarr/internal/errors"
)

// Engine adapts the RPC client to the bridge client contract. Submission
// returns the normalized package name as the handle: the engine's crawler
// assigns package uuids asynchronously, so packages are re-found by name on
// every poll.
type Engine struct {
	client *Client
}

func NewEngine(client *Client) *Engine {
	return &Engine{client: client}
}

// enginePackage is the wire shape shared by the collector and the download
// list queries.
type enginePackage struct {
	UUID        int64  `json:"uuid"`
	Name        string `json:"name"`
	BytesTotal  int64  `json:"bytesTotal"`
	BytesLoaded int64  `json:"bytesLoaded"`
	Speed       int64  `json:"speed"`
	ETA         int64  `json:"eta"`
	Finished    bool   `json:"finished"`
	Running     bool   `json:"running"`
	Status      string `json:"status"`
	SaveTo      string `json:"saveTo"`
}

// Submit registers links with the collector and starts them immediately.
func (e *Engine) Submit(ctx context.Context, sub bridge.Submission) ([]bridge.Handle, error) {
	name := NormalizeName(sub.PackageName)

	params := map[string]any{
		"links":                    strings.Join(sub.Links, "\n"),
		"packageName":              name,
		"autostart":                true,
		"overwritePackagizerRules": true,
	}
	if sub.DestFolder != "" {
		params["destinationFolder"] = sub.DestFolder
	}

	var resp struct {
		ID int64 `json:"id"`
	}
	if err := e.client.callDevice(ctx, "/linkgrabberv2/addLinks", []any{params}, &resp); err != nil {
		return nil, err
	}

	return []bridge.Handle{bridge.Handle(name)}, nil
}

// Poll reports the normalized state of each package. A handle found in the
// download list maps through its status text; one still sitting in the
// collector is pending; one missing from both lists reports unknown, since
// the crawler materializes packages asynchronously and a just-submitted
// name can be invisible for a poll cycle or two.
func (e *Engine) Poll(ctx context.Context, handles []bridge.Handle) ([]bridge.LinkStatus, error) {
	downloads, err := e.queryDownloads(ctx)
	if err != nil {
		return nil, err
	}

	collector, err := e.queryCollector(ctx)
	if err != nil {
		return nil, err
	}

	statuses := make([]bridge.LinkStatus, 0, len(handles))
	for _, h := range handles {
		statuses = append(statuses, packageStatus(h, downloads, collector))
	}

	return statuses, nil
}

// packageStatus resolves one handle against both package lists. A handle
// found in neither must not fail the job: it is indistinguishable from a
// package the crawler has not materialized yet, so it reports unknown and
// the caller holds the last known state.
func packageStatus(h bridge.Handle, downloads, collector []enginePackage) bridge.LinkStatus {
	name := NormalizeName(string(h))

	if pkg, ok := findPackage(downloads, name); ok {
		return bridge.LinkStatus{
			Handle:      h,
			State:       mapPackageState(pkg),
			Name:        pkg.Name,
			BytesTotal:  pkg.BytesTotal,
			BytesLoaded: pkg.BytesLoaded,
			Speed:       pkg.Speed,
			ETA:         pkg.ETA,
			SavePath:    pkg.SaveTo,
		}
	}

	if pkg, ok := findPackage(collector, name); ok {
		return bridge.LinkStatus{
			Handle:     h,
			State:      bridge.Pending,
			Name:       pkg.Name,
			BytesTotal: pkg.BytesTotal,
			SavePath:   pkg.SaveTo,
		}
	}

	return bridge.LinkStatus{
		Handle: h,
		State:  bridge.Unknown,
		Name:   name,
	}
}

// Cancel removes a package from both the collector and the download list.
func (e *Engine) Cancel(ctx context.Context, handle bridge.Handle) error {
	name := NormalizeName(string(handle))

	downloads, err := e.queryDownloads(ctx)
	if err != nil {
		return err
	}
	if pkg, ok := findPackage(downloads, name); ok {
		if err := e.client.callDevice(ctx, "/downloadsV2/removeLinks", []any{[]int64{}, []int64{pkg.UUID}}, nil); err != nil {
			return err
		}
	}

	collector, err := e.queryCollector(ctx)
	if err != nil {
		return err
	}
	if pkg, ok := findPackage(collector, name); ok {
		if err := e.client.callDevice(ctx, "/linkgrabberv2/removeLinks", []any{[]int64{}, []int64{pkg.UUID}}, nil); err != nil {
			return err
		}
	}

	return nil
}

func (e *Engine) queryDownloads(ctx context.Context) ([]enginePackage, error) {
	query := map[string]any{
		"bytesTotal":  true,
		"bytesLoaded": true,
		"speed":       true,
		"eta":         true,
		"finished":    true,
		"running":     true,
		"status":      true,
		"saveTo":      true,
	}

	var pkgs []enginePackage
	if err := e.client.callDevice(ctx, "/downloadsV2/queryPackages", []any{query}, &pkgs); err != nil {
		return nil, err
	}

	return pkgs, nil
}

func (e *Engine) queryCollector(ctx context.Context) ([]enginePackage, error) {
	query := map[string]any{
		"bytesTotal": true,
		"saveTo":     true,
		"status":     true,
	}

	var pkgs []enginePackage
	if err := e.client.callDevice(ctx, "/linkgrabberv2/queryPackages", []any{query}, &pkgs); err != nil {
		return nil, err
	}

	return pkgs, nil
}

func findPackage(pkgs []enginePackage, name string) (enginePackage, bool) {
	for _, p := range pkgs {
		if strings.EqualFold(NormalizeName(p.Name), name) {
			return p, true
		}
	}

	return enginePackage{}, false
}

// mapPackageState folds the engine's free-form status text into the
// normalized alphabet.
func mapPackageState(pkg enginePackage) bridge.LinkState {
	if pkg.Finished {
		return bridge.Success
	}

	st := strings.ToLower(pkg.Status)

	switch {
	case strings.Contains(st, "extract"):
		return bridge.Extracting
	case strings.Contains(st, "error"), strings.Contains(st, "offline"), strings.Contains(st, "file not found"):
		return bridge.Failure
	case pkg.Running:
		return bridge.Active
	case strings.Contains(st, "queue"), strings.Contains(st, "wait"):
		return bridge.Pending
	default:
		return bridge.Pending
	}
}

// nameReplacer mirrors the engine's filesystem-safe renaming of package
// names, so names built here match what the engine reports back.
var nameReplacer = strings.NewReplacer(
	":", ";",
	"/", "⁄",
	`"`, "'",
	"<", "(",
	">", ")",
	"|", "-",
	`\`, "",
	"*", "",
	"?", "",
)

// NormalizeName applies the engine's character replacement table and trims
// the result.
func NormalizeName(name string) string {
	return strings.TrimSpace(nameReplacer.Replace(name))
}

var _ bridge.Client = (*Engine)(nil)

// Ping verifies connectivity and credentials by forcing a session.
func (e *Engine) Ping(ctx context.Context) error {
	_, err := e.client.currentSession(ctx)
	if err != nil && !errors.IsAuth(err) && !errors.IsEngine(err) {
		return errors.NewEngineError(err, "ping", 0)
	}

	return err
}
