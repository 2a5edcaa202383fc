package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"subforge/internal/subtitle"
	"subforge/pkg/log"
)

// HTTPConfig configures a generic multipart speech-to-text endpoint
// (whisper.cpp server, faster-whisper-server and compatible APIs).
type HTTPConfig struct {
	URL    string
	APIKey string
	Model  string
	// RequestsPerMinute throttles uploads; 0 disables throttling.
	RequestsPerMinute int
	// Timeout bounds one upload+transcription round trip.
	Timeout time.Duration
}

// HTTPBackend uploads a chunk file as multipart form data and accepts
// either raw SRT text or a JSON segment list in response.
type HTTPBackend struct {
	cfg        HTTPConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *log.Logger
}

func NewHTTPBackend(cfg HTTPConfig, logger *log.Logger) (*HTTPBackend, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("transcription endpoint URL is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), 1)
	}

	return &HTTPBackend{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    limiter,
		logger:     logger,
	}, nil
}

func (b *HTTPBackend) Identity() Identity {
	return Identity{ID: "http", Model: b.cfg.Model}
}

func (b *HTTPBackend) Transcribe(ctx context.Context, audioPath string, opts Options, progress ProgressFunc) ([]subtitle.Cue, error) {
	if b.limiter != nil {
		if err := b.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	report := func(pct float64, msg string) {
		if progress != nil {
			progress(pct, msg)
		}
	}
	report(0, "uploading audio")

	body, contentType, total, err := b.buildRequestBody(audioPath, opts)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	uploadProgress := func(read int64) {
		if total <= 0 {
			return
		}
		pct := float64(read) / float64(total) * 80
		if pct > 80 {
			pct = 80
		}
		report(pct, "uploading audio")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.cfg.URL,
		&progressReader{reader: body, callback: uploadProgress})
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	if b.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.cfg.APIKey)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("transcription request: %w", err)
	}
	defer resp.Body.Close()

	report(85, "transcription received")

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, fmt.Errorf("read transcription response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, statusError("http", resp.StatusCode, truncateForError(payload))
	}

	cues, err := parseTranscript(payload)
	if err != nil {
		return nil, err
	}

	report(100, "transcription complete")
	return cues, nil
}

// buildRequestBody assembles the multipart payload in memory. Chunk files
// are bounded by the chunk length so buffering is acceptable, and it gives
// an exact total for upload progress.
func (b *HTTPBackend) buildRequestBody(audioPath string, opts Options) (io.ReadCloser, string, int64, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return nil, "", 0, fmt.Errorf("open audio file: %w", err)
	}
	defer f.Close()

	var buf strings.Builder
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, "", 0, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", 0, fmt.Errorf("copy audio into request: %w", err)
	}

	fields := map[string]string{
		"response_format": "srt",
	}
	if b.cfg.Model != "" {
		fields["model"] = b.cfg.Model
	}
	if opts.Language != "" {
		fields["language"] = opts.Language
	}
	if opts.WordTimestamps {
		fields["word_timestamps"] = "true"
	}
	if opts.VAD {
		fields["vad_filter"] = "true"
		if opts.VADThreshold > 0 {
			fields["vad_threshold"] = strconv.FormatFloat(opts.VADThreshold, 'f', 2, 64)
		}
	}
	if opts.Prompt != "" {
		fields["prompt"] = opts.Prompt
	}
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return nil, "", 0, fmt.Errorf("write form field %s: %w", key, err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", 0, fmt.Errorf("finalize multipart body: %w", err)
	}

	payload := buf.String()
	return io.NopCloser(strings.NewReader(payload)), writer.FormDataContentType(), int64(len(payload)), nil
}

// jsonSegment is the segment shape emitted by whisper-style JSON APIs.
type jsonSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// parseTranscript accepts either a JSON segment list or raw SRT text.
func parseTranscript(payload []byte) ([]subtitle.Cue, error) {
	trimmed := strings.TrimSpace(string(payload))
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty response", ErrResultUnparseable)
	}

	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		return parseJSONTranscript(trimmed)
	}

	cues, err := subtitle.ParseString(trimmed)
	if err != nil || len(cues) == 0 {
		return nil, fmt.Errorf("%w: %v", ErrResultUnparseable, err)
	}
	return cues, nil
}

func parseJSONTranscript(payload string) ([]subtitle.Cue, error) {
	var segments []jsonSegment
	if err := json.Unmarshal([]byte(payload), &segments); err != nil {
		var wrapped struct {
			Segments []jsonSegment `json:"segments"`
		}
		if err := json.Unmarshal([]byte(payload), &wrapped); err != nil || len(wrapped.Segments) == 0 {
			return nil, fmt.Errorf("%w: unrecognized JSON shape", ErrResultUnparseable)
		}
		segments = wrapped.Segments
	}

	cues := make([]subtitle.Cue, 0, len(segments))
	for i, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		cues = append(cues, subtitle.Cue{
			Index: i + 1,
			Start: time.Duration(seg.Start * float64(time.Second)),
			End:   time.Duration(seg.End * float64(time.Second)),
			Text:  text,
		})
	}
	if len(cues) == 0 {
		return nil, fmt.Errorf("%w: no usable segments", ErrResultUnparseable)
	}
	subtitle.Renumber(cues)
	return cues, nil
}

func truncateForError(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 300 {
		return s[:300] + "..."
	}
	return s
}

// progressReader reports cumulative bytes read to a callback.
type progressReader struct {
	reader   io.Reader
	read     int64
	callback func(read int64)
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	pr.read += int64(n)
	if pr.callback != nil && n > 0 {
		pr.callback(pr.read)
	}
	return n, err
}
