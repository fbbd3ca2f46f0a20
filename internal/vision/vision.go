// Package vision reads CAD-critical dimensions off product imagery.
//
// Vendor listings rarely state motor bolt patterns, stack hole spacing
// or camera body width in the copy, but their gallery usually includes
// a technical drawing that does. The analyzer downloads one image and
// asks the vision model to read the dimensions from it.
package vision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"quadforge/internal/logging"
	"quadforge/internal/parts"
)

// Image categories the analyzer carries measurement prompts for.
const (
	CategoryMotor   = "MOTOR"
	CategoryFCStack = "FC_STACK"
	CategoryCamera  = "CAMERA"
)

// ErrNoVision marks an image the model could not measure: download
// failures, non-image content, oversized payloads, or a reply without
// a single usable dimension. Callers fall back to text heuristics.
var ErrNoVision = errors.New("no usable vision data")

const (
	maxImageBytes   = 8 << 20
	downloadTimeout = 10 * time.Second
	// Bare browser token. Some CDNs 403 the Go default agent.
	downloadUA = "Mozilla/5.0"
)

const visionSystemPrompt = "You are a CAD Engineer converting a product image into 3D printing constraints."

const motorTask = `Look for a technical drawing showing the BOTTOM of the motor.
Extract the 'Mounting Pattern' (distance between screw holes, usually 9mm, 12mm, 16mm, or 19mm).
Extract the 'Shaft Diameter' (usually 1.5mm, 2mm, or 5mm).`

const fcStackTask = `Look for the mounting holes on the board.
Extract the 'Mounting Pattern' (distance center-to-center). Common values: 16x16, 20x20, 25.5x25.5, 30.5x30.5.
Look for the USB port. Is it projecting from the SIDE or UP/DOWN?`

const cameraTask = `Extract the width of the camera body (horizontal dimension).
Common values: 14mm (Nano), 19mm (Micro), 20mm (DJI), 22mm (Mini).`

var categoryTasks = map[string]struct {
	task      string
	structure string
}{
	CategoryMotor:   {motorTask, `{"mounting_mm": "float or null", "shaft_mm": "float or null"}`},
	CategoryFCStack: {fcStackTask, `{"mounting_mm": "float or null", "usb_orientation": "SIDE or DOWN"}`},
	CategoryCamera:  {cameraTask, `{"width_mm": "float or null"}`},
}

// Client is the slice of the LLM client the analyzer needs.
type Client interface {
	CompleteWithImage(ctx context.Context, systemPrompt, userPrompt string, image []byte, mimeType string) (string, error)
}

// Analyzer downloads product images and extracts dimensions from them.
type Analyzer struct {
	llm  Client
	http *http.Client
}

// NewAnalyzer returns an analyzer backed by llm.
func NewAnalyzer(llm Client) *Analyzer {
	return &Analyzer{
		llm:  llm,
		http: &http.Client{Timeout: downloadTimeout},
	}
}

// InspectImage downloads imageURL and asks the model to measure it.
// The returned specs use the canonical parts keys for the category:
// motor mount and shaft diameter for MOTOR, stack mount and USB
// orientation for FC_STACK, body width for CAMERA. Dimensions the
// image did not show are absent; a reply with none of them is
// ErrNoVision.
func (a *Analyzer) InspectImage(ctx context.Context, imageURL, category string) (parts.Specs, error) {
	ct, ok := categoryTasks[category]
	if !ok {
		return nil, fmt.Errorf("unknown vision category %q", category)
	}
	logging.Vision("[inspect] category=%s url=%s", category, imageURL)

	img, mime, err := a.download(ctx, imageURL)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logging.VisionWarn("[inspect] download failed url=%s: %v", imageURL, err)
		return nil, fmt.Errorf("%w: download failed: %v", ErrNoVision, err)
	}
	logging.VisionDebug("[inspect] downloaded %d bytes mime=%s", len(img), mime)

	user := fmt.Sprintf(`IMAGE ANALYSIS TASK:
%s

If the image is just a marketing photo and NOT a technical diagram, return nulls.
If you see calipers or dimension lines, trust those numbers explicitly.

OUTPUT SCHEMA (JSON ONLY):
%s`, ct.task, ct.structure)

	text, err := a.llm.CompleteWithImage(ctx, visionSystemPrompt, user, img, mime)
	if err != nil {
		return nil, fmt.Errorf("vision completion: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty reply", ErrNoVision)
	}

	reply, err := decodeReply(text)
	if err != nil {
		logging.VisionWarn("[inspect] unparsable reply: %v raw=%q", err, clip(text, 200))
		return nil, fmt.Errorf("%w: %v", ErrNoVision, err)
	}
	specs := mapSpecs(category, reply)
	if len(specs) == 0 {
		logging.VisionDebug("[inspect] no dimensions in reply for %s", imageURL)
		return nil, fmt.Errorf("%w: model returned no dimensions", ErrNoVision)
	}
	logging.Vision("[inspect] category=%s extracted %d specs", category, len(specs))
	return specs, nil
}

func (a *Analyzer) download(ctx context.Context, imageURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("User-Agent", downloadUA)
	resp, err := a.http.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, "", err
	}
	if len(data) == 0 {
		return nil, "", fmt.Errorf("empty body")
	}
	if len(data) > maxImageBytes {
		return nil, "", fmt.Errorf("image exceeds %d bytes", maxImageBytes)
	}
	mime := resp.Header.Get("Content-Type")
	if i := strings.Index(mime, ";"); i >= 0 {
		mime = mime[:i]
	}
	mime = strings.TrimSpace(mime)
	if mime == "" || mime == "application/octet-stream" {
		mime = http.DetectContentType(data)
	}
	if !strings.HasPrefix(mime, "image/") {
		return nil, "", fmt.Errorf("content type %q is not an image", mime)
	}
	return data, mime, nil
}

var fencedJSON = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*\\})\\s*```")

// decodeReply recovers a JSON object from model output: fenced block
// first, then outermost braces, then the whole text. Replies sometimes
// arrive in Python literal syntax (True/None/single quotes), so a
// normalized retry follows the strict parse.
func decodeReply(text string) (map[string]interface{}, error) {
	raw := text
	if m := fencedJSON.FindStringSubmatch(text); m != nil {
		raw = m[1]
	} else if i, j := strings.Index(text, "{"), strings.LastIndex(text, "}"); i >= 0 && j > i {
		raw = text[i : j+1]
	}
	var out map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &out); err == nil {
		return out, nil
	}
	normalized := strings.NewReplacer(
		"True", "true",
		"False", "false",
		"None", "null",
		"'", `"`,
	).Replace(raw)
	if err := json.Unmarshal([]byte(normalized), &out); err != nil {
		return nil, fmt.Errorf("decode reply: %w", err)
	}
	return out, nil
}

func mapSpecs(category string, reply map[string]interface{}) parts.Specs {
	specs := parts.Specs{}
	switch category {
	case CategoryMotor:
		putFloat(specs, parts.SpecMotorMountMM, reply["mounting_mm"])
		putFloat(specs, parts.SpecShaftMM, reply["shaft_mm"])
	case CategoryFCStack:
		putFloat(specs, parts.SpecFCMountMM, reply["mounting_mm"])
		putString(specs, parts.SpecUSBOrientation, reply["usb_orientation"])
	case CategoryCamera:
		putFloat(specs, parts.SpecCameraWidthMM, reply["width_mm"])
	}
	return specs
}

func putFloat(specs parts.Specs, key string, v interface{}) {
	switch n := v.(type) {
	case float64:
		if n > 0 {
			specs[key] = n
		}
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err == nil && f > 0 {
			specs[key] = f
		}
	}
}

func putString(specs parts.Specs, key string, v interface{}) {
	s, ok := v.(string)
	if !ok {
		return
	}
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" || s == "NULL" {
		return
	}
	specs[key] = s
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
