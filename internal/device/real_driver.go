package device

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"pixoo-scened/internal/canvas"
	"pixoo-scened/internal/rerr"
)

// frameCommand is the JSON envelope for a frame push.
// {Command:"Draw/SendHttpGif", PicNum:1, PicWidth:64, PicHeight:64,
//  PicOffset:0, PicID:<rolling>, PicSpeed:1000, PicData:<base64>}
type frameCommand struct {
	Command   string `json:"Command"`
	PicNum    int    `json:"PicNum"`
	PicWidth  int    `json:"PicWidth"`
	PicHeight int    `json:"PicHeight"`
	PicOffset int    `json:"PicOffset"`
	PicID     int    `json:"PicID"`
	PicSpeed  int    `json:"PicSpeed"`
	PicData   string `json:"PicData"`
}

type simpleCommand struct {
	Command string `json:"Command"`
}

type brightnessCommand struct {
	Command    string `json:"Command"`
	Brightness int    `json:"Brightness"`
}

type powerCommand struct {
	Command string `json:"Command"`
	OnOff   int    `json:"OnOff"`
}

type channelIndexCommand struct {
	Command     string `json:"Command"`
	SelectIndex int    `json:"SelectIndex"`
}

type currentChannelCommand struct {
	Command string `json:"Command"`
	Channel int    `json:"Channel"`
}

type deviceResponse struct {
	ErrorCode int `json:"error_code"`
}

// RealDriver owns a 64x64x3 RGB framebuffer and pushes it to a
// physical device over HTTP. Alpha is consumed at blend time — only
// RGB bytes travel over the wire.
type RealDriver struct {
	host       string
	httpClient *http.Client
	log        zerolog.Logger

	mu          sync.Mutex
	initialized bool
	picID       int32
}

// NewRealDriver constructs a real driver targeting host (bare
// hostname or IP, no scheme).
func NewRealDriver(host string, log zerolog.Logger) *RealDriver {
	return &RealDriver{
		host:       host,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		log:        log,
	}
}

func (d *RealDriver) Kind() Kind { return KindReal }

func (d *RealDriver) Ready() bool { return true }

func (d *RealDriver) Push(ctx context.Context, c *canvas.Canvas) error {
	d.mu.Lock()
	first := !d.initialized
	d.initialized = true
	d.mu.Unlock()

	if first {
		// Best effort: init command failures never block the first push.
		_ = d.post(ctx, simpleCommand{Command: "Draw/ResetHttpGifId"})
		_ = d.post(ctx, currentChannelCommand{Command: "Channel/SetCurrentChannel", Channel: 4})
	}

	rgb := make([]byte, canvas.Width*canvas.Height*3)
	i := 0
	for y := 0; y < canvas.Height; y++ {
		for x := 0; x < canvas.Width; x++ {
			col := c.At(x, y)
			rgb[i] = col.R
			rgb[i+1] = col.G
			rgb[i+2] = col.B
			i += 3
		}
	}

	picID := int(atomic.AddInt32(&d.picID, 1))
	cmd := frameCommand{
		Command:   "Draw/SendHttpGif",
		PicNum:    1,
		PicWidth:  canvas.Width,
		PicHeight: canvas.Height,
		PicOffset: 0,
		PicID:     picID,
		PicSpeed:  1000,
		PicData:   base64.StdEncoding.EncodeToString(rgb),
	}
	if err := d.post(ctx, cmd); err != nil {
		return rerr.New(rerr.DeviceTransport, d.host, err)
	}
	return nil
}

func (d *RealDriver) SetBrightness(ctx context.Context, percent int) error {
	if err := d.post(ctx, brightnessCommand{Command: "Channel/SetBrightness", Brightness: percent}); err != nil {
		return rerr.New(rerr.DeviceTransport, d.host, err)
	}
	return nil
}

func (d *RealDriver) SetDisplayOn(ctx context.Context, on bool) error {
	v := 0
	if on {
		v = 1
	}
	if err := d.post(ctx, powerCommand{Command: "Channel/OnOffScreen", OnOff: v}); err != nil {
		return rerr.New(rerr.DeviceTransport, d.host, err)
	}
	return nil
}

// Reset selects channel index 0 (the init channel), waits one second,
// then selects index 3.
func (d *RealDriver) Reset(ctx context.Context) error {
	if err := d.post(ctx, channelIndexCommand{Command: "Channel/SetIndex", SelectIndex: 0}); err != nil {
		return rerr.New(rerr.DeviceTransport, d.host, err)
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(time.Second):
	}
	if err := d.post(ctx, channelIndexCommand{Command: "Channel/SetIndex", SelectIndex: 3}); err != nil {
		return rerr.New(rerr.DeviceTransport, d.host, err)
	}
	return nil
}

func (d *RealDriver) post(ctx context.Context, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("http://%s/post", d.host)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("device %s: non-2xx status %d", d.host, resp.StatusCode)
	}

	var decoded deviceResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err == nil && decoded.ErrorCode != 0 {
		return fmt.Errorf("device %s: error_code=%d", d.host, decoded.ErrorCode)
	}
	d.log.Debug().Str("url", url).Msg("device push ok")
	return nil
}
