package vision

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quadforge/internal/parts"
)

type fakeVision struct {
	reply      string
	err        error
	calls      int
	lastSystem string
	lastUser   string
	lastImage  []byte
	lastMime   string
}

func (f *fakeVision) CompleteWithImage(_ context.Context, systemPrompt, userPrompt string, image []byte, mimeType string) (string, error) {
	f.calls++
	f.lastSystem = systemPrompt
	f.lastUser = userPrompt
	f.lastImage = append([]byte(nil), image...)
	f.lastMime = mimeType
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

var pngBytes = append([]byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}, bytes.Repeat([]byte{0}, 24)...)

func imageServer(t *testing.T, contentType string, body []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Mozilla/5.0", r.Header.Get("User-Agent"))
		if contentType != "" {
			w.Header().Set("Content-Type", contentType)
		}
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestInspectImageMotor(t *testing.T) {
	srv := imageServer(t, "image/png", pngBytes)
	llm := &fakeVision{reply: `{"mounting_mm": 16.0, "shaft_mm": null}`}
	a := NewAnalyzer(llm)

	specs, err := a.InspectImage(context.Background(), srv.URL+"/motor.png", CategoryMotor)
	require.NoError(t, err)

	mount, ok := specs.Float(parts.SpecMotorMountMM)
	require.True(t, ok)
	assert.Equal(t, 16.0, mount)
	assert.False(t, specs.Has(parts.SpecShaftMM))

	assert.Equal(t, "image/png", llm.lastMime)
	assert.Equal(t, pngBytes, llm.lastImage)
	assert.Contains(t, llm.lastSystem, "CAD Engineer")
	assert.Contains(t, llm.lastUser, "BOTTOM of the motor")
	assert.Contains(t, llm.lastUser, `"mounting_mm"`)
	assert.Contains(t, llm.lastUser, "OUTPUT SCHEMA (JSON ONLY)")
}

func TestInspectImageFCStack(t *testing.T) {
	srv := imageServer(t, "image/jpeg", pngBytes)
	llm := &fakeVision{reply: `{"mounting_mm": "30.5", "usb_orientation": "side"}`}
	a := NewAnalyzer(llm)

	specs, err := a.InspectImage(context.Background(), srv.URL+"/stack.jpg", CategoryFCStack)
	require.NoError(t, err)

	mount, ok := specs.Float(parts.SpecFCMountMM)
	require.True(t, ok)
	assert.Equal(t, 30.5, mount)
	usb, ok := specs.String(parts.SpecUSBOrientation)
	require.True(t, ok)
	assert.Equal(t, "SIDE", usb)
	assert.Contains(t, llm.lastUser, "USB port")
}

func TestInspectImageCameraFenced(t *testing.T) {
	srv := imageServer(t, "image/png", pngBytes)
	llm := &fakeVision{reply: "Here is the measurement:\n```json\n{\"width_mm\": 19}\n```\nHope that helps."}
	a := NewAnalyzer(llm)

	specs, err := a.InspectImage(context.Background(), srv.URL+"/cam.png", CategoryCamera)
	require.NoError(t, err)

	width, ok := specs.Float(parts.SpecCameraWidthMM)
	require.True(t, ok)
	assert.Equal(t, 19.0, width)
}

func TestInspectImagePythonLiterals(t *testing.T) {
	srv := imageServer(t, "image/png", pngBytes)
	llm := &fakeVision{reply: `{'mounting_mm': None, 'shaft_mm': 2.0}`}
	a := NewAnalyzer(llm)

	specs, err := a.InspectImage(context.Background(), srv.URL+"/motor.png", CategoryMotor)
	require.NoError(t, err)

	assert.False(t, specs.Has(parts.SpecMotorMountMM))
	shaft, ok := specs.Float(parts.SpecShaftMM)
	require.True(t, ok)
	assert.Equal(t, 2.0, shaft)
}

func TestInspectImageAllNull(t *testing.T) {
	srv := imageServer(t, "image/png", pngBytes)
	llm := &fakeVision{reply: `{"width_mm": null}`}
	a := NewAnalyzer(llm)

	_, err := a.InspectImage(context.Background(), srv.URL+"/cam.png", CategoryCamera)
	require.ErrorIs(t, err, ErrNoVision)
}

func TestInspectImageUnparsableReply(t *testing.T) {
	srv := imageServer(t, "image/png", pngBytes)
	llm := &fakeVision{reply: "This is a marketing photo with no visible dimensions."}
	a := NewAnalyzer(llm)

	_, err := a.InspectImage(context.Background(), srv.URL+"/cam.png", CategoryCamera)
	require.ErrorIs(t, err, ErrNoVision)
}

func TestInspectImageEmptyReply(t *testing.T) {
	srv := imageServer(t, "image/png", pngBytes)
	llm := &fakeVision{reply: "   "}
	a := NewAnalyzer(llm)

	_, err := a.InspectImage(context.Background(), srv.URL+"/motor.png", CategoryMotor)
	require.ErrorIs(t, err, ErrNoVision)
}

func TestInspectImageDownloadError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	t.Cleanup(srv.Close)
	llm := &fakeVision{reply: `{"mounting_mm": 16}`}
	a := NewAnalyzer(llm)

	_, err := a.InspectImage(context.Background(), srv.URL+"/gone.png", CategoryMotor)
	require.ErrorIs(t, err, ErrNoVision)
	assert.Zero(t, llm.calls)
}

func TestInspectImageRejectsNonImage(t *testing.T) {
	srv := imageServer(t, "text/html", []byte("<html><body>404 interstitial</body></html>"))
	llm := &fakeVision{reply: `{"mounting_mm": 16}`}
	a := NewAnalyzer(llm)

	_, err := a.InspectImage(context.Background(), srv.URL+"/page", CategoryMotor)
	require.ErrorIs(t, err, ErrNoVision)
	assert.Zero(t, llm.calls)
}

func TestInspectImageRejectsOversize(t *testing.T) {
	srv := imageServer(t, "image/png", bytes.Repeat([]byte{0}, maxImageBytes+1))
	llm := &fakeVision{reply: `{"mounting_mm": 16}`}
	a := NewAnalyzer(llm)

	_, err := a.InspectImage(context.Background(), srv.URL+"/huge.png", CategoryMotor)
	require.ErrorIs(t, err, ErrNoVision)
	assert.Zero(t, llm.calls)
}

func TestInspectImageSniffsContentType(t *testing.T) {
	srv := imageServer(t, "application/octet-stream", pngBytes)
	llm := &fakeVision{reply: `{"mounting_mm": 9.0, "shaft_mm": 1.5}`}
	a := NewAnalyzer(llm)

	specs, err := a.InspectImage(context.Background(), srv.URL+"/raw", CategoryMotor)
	require.NoError(t, err)
	assert.Equal(t, "image/png", llm.lastMime)

	mount, _ := specs.Float(parts.SpecMotorMountMM)
	shaft, _ := specs.Float(parts.SpecShaftMM)
	assert.Equal(t, 9.0, mount)
	assert.Equal(t, 1.5, shaft)
}

func TestInspectImageUnknownCategory(t *testing.T) {
	llm := &fakeVision{}
	a := NewAnalyzer(llm)

	_, err := a.InspectImage(context.Background(), "http://example.com/x.png", "PROPELLER")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoVision)
	assert.Contains(t, err.Error(), "unknown vision category")
	assert.Zero(t, llm.calls)
}

func TestDecodeReply(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want map[string]interface{}
		ok   bool
	}{
		{"bare", `{"a": 1}`, map[string]interface{}{"a": 1.0}, true},
		{"fenced", "```json\n{\"a\": 1}\n```", map[string]interface{}{"a": 1.0}, true},
		{"anonymous fence", "```\n{\"a\": 1}\n```", map[string]interface{}{"a": 1.0}, true},
		{"prose wrapped", `Sure: {"a": 1} done`, map[string]interface{}{"a": 1.0}, true},
		{"python literals", `{'a': True, 'b': None}`, map[string]interface{}{"a": true, "b": nil}, true},
		{"no object", "nothing here", nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := decodeReply(tc.in)
			if !tc.ok {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}
