// octool is a command-line client for a running quantizer host. It
// queries status, edits scales and voltage standards, manages
// calibration tables, and watches live output over the control API.
//
// Usage:
//
//	octool -addr localhost:7180 -cmd status
//
// Options:
//
//	-addr string     Control API address (default "localhost:7180")
//	-cmd string      Command: status, scales, watch, set-scale,
//	                 set-standard, transpose, cal-get, cal-set, cal-save
//	-channel int     Target channel (default 0)
//	-scale string    Scale name for set-scale
//	-mode string     Voltage standard for set-standard (1V/oct, buchla, buchla-4u)
//	-span int        Scale span override for set-standard
//	-octaves int     Octave shift for transpose
//	-semitones int   Semitone shift for transpose
//	-points string   Calibration points for cal-set ("pitch:code, ...")
//	-config string   Settings file for cal-save
//
// Examples:
//
//	# Show a status snapshot
//	octool -cmd status
//
//	# Put channel 1 on the minor pentatonic
//	octool -cmd set-scale -channel 1 -scale "minor pentatonic"
//
//	# Switch to the Buchla 1.2V standard
//	octool -cmd set-standard -mode buchla
//
//	# Persist all calibration tables into the settings file
//	octool -cmd cal-save -config ~/quantizer.cfg
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/gorilla/websocket"

	"cvquant-go/pkg/calibration"
	"cvquant-go/pkg/config"
	"cvquant-go/pkg/pitch"
)

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
	ID      any             `json:"id,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type channelStatus struct {
	Scale     string `json:"scale"`
	SpanIndex int    `json:"span_index"`
	Degree    int    `json:"degree"`
	Note      string `json:"note"`
	Code      uint16 `json:"code"`
}

type hostStatus struct {
	Standard string          `json:"standard"`
	Cycles   uint64          `json:"cycles"`
	Channels []channelStatus `json:"channels"`
}

func main() {
	addr := flag.String("addr", "localhost:7180", "Control API address")
	cmd := flag.String("cmd", "status", "Command: status, scales, watch, set-scale, set-standard, transpose, cal-get, cal-set, cal-save")
	channel := flag.Int("channel", 0, "Target channel")
	scaleName := flag.String("scale", "", "Scale name for set-scale")
	mode := flag.String("mode", "", "Voltage standard for set-standard")
	span := flag.Int("span", 0, "Scale span override for set-standard")
	octaves := flag.Int("octaves", 0, "Octave shift for transpose")
	semitones := flag.Int("semitones", 0, "Semitone shift for transpose")
	points := flag.String("points", "", "Calibration points for cal-set (\"pitch:code, ...\")")
	configFile := flag.String("config", "", "Settings file for cal-save")
	flag.Parse()

	c := &client{addr: *addr}

	var err error
	switch *cmd {
	case "status":
		err = c.showStatus()
	case "scales":
		err = c.listScales()
	case "watch":
		err = c.watch()
	case "set-scale":
		if *scaleName == "" {
			err = fmt.Errorf("-scale is required for set-scale")
			break
		}
		err = c.call("quantizer.scale.set",
			map[string]any{"channel": *channel, "name": *scaleName}, nil)
	case "set-standard":
		if *mode == "" {
			err = fmt.Errorf("-mode is required for set-standard")
			break
		}
		err = c.call("quantizer.standard.set",
			map[string]any{"mode": *mode, "span": *span}, nil)
	case "transpose":
		err = c.call("quantizer.transpose.set",
			map[string]any{"channel": *channel, "octaves": *octaves, "semitones": *semitones}, nil)
	case "cal-get":
		err = c.showCalibration(*channel)
	case "cal-set":
		err = c.setCalibration(*channel, *points)
	case "cal-save":
		if *configFile == "" {
			err = fmt.Errorf("-config is required for cal-save")
			break
		}
		err = c.saveCalibration(*configFile)
	default:
		err = fmt.Errorf("unknown command %q", *cmd)
	}

	if err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}

type client struct {
	addr string
}

// call posts one JSON-RPC request and decodes the result into out (if
// out is non-nil).
func (c *client) call(method string, params any, out any) error {
	body := map[string]any{
		"jsonrpc": "2.0",
		"method":  method,
		"id":      1,
	}
	if params != nil {
		body["params"] = params
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	httpClient := &http.Client{Timeout: 10 * time.Second}
	resp, err := httpClient.Post("http://"+c.addr+"/jsonrpc", "application/json", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var rpc rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpc); err != nil {
		return err
	}
	if rpc.Error != nil {
		return fmt.Errorf("%s (code %d)", rpc.Error.Message, rpc.Error.Code)
	}
	if out != nil {
		return json.Unmarshal(rpc.Result, out)
	}
	color.Green("ok")
	return nil
}

func (c *client) showStatus() error {
	var status hostStatus
	if err := c.call("quantizer.status", nil, &status); err != nil {
		return err
	}
	printStatus(&status)
	return nil
}

func printStatus(status *hostStatus) {
	color.Cyan("standard: %s  cycles: %d", status.Standard, status.Cycles)
	for i, ch := range status.Channels {
		fmt.Printf("  ch%d: %-16s span %3d  degree %2d  %-4s code %5d\n",
			i, ch.Scale, ch.SpanIndex, ch.Degree, ch.Note, ch.Code)
	}
}

func (c *client) listScales() error {
	var result struct {
		Presets []string `json:"presets"`
	}
	if err := c.call("quantizer.scales.list", nil, &result); err != nil {
		return err
	}
	for _, name := range result.Presets {
		fmt.Println(name)
	}
	return nil
}

// watch subscribes over the websocket and prints every status push
// until interrupted.
func (c *client) watch() error {
	conn, _, err := websocket.DefaultDialer.Dial("ws://"+c.addr+"/websocket", nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	sub := map[string]any{
		"jsonrpc": "2.0",
		"method":  "quantizer.subscribe",
		"id":      1,
	}
	if err := conn.WriteJSON(sub); err != nil {
		return err
	}

	color.Yellow("watching (Ctrl+C to stop)")
	for {
		var msg struct {
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
			Result json.RawMessage   `json:"result"`
			Error  *rpcError         `json:"error"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			return err
		}
		if msg.Error != nil {
			return fmt.Errorf("%s (code %d)", msg.Error.Message, msg.Error.Code)
		}
		if msg.Method != "notify_status_update" || len(msg.Params) == 0 {
			continue
		}
		var status hostStatus
		if err := json.Unmarshal(msg.Params[0], &status); err != nil {
			return err
		}
		printStatus(&status)
	}
}

type calPoint struct {
	Pitch int32  `json:"pitch"`
	Code  uint16 `json:"code"`
}

func (c *client) fetchCalibration(channel int) (*calibration.Table, error) {
	var result struct {
		Channel int        `json:"channel"`
		Points  []calPoint `json:"points"`
	}
	if err := c.call("quantizer.calibration.get",
		map[string]any{"channel": channel}, &result); err != nil {
		return nil, err
	}
	pts := make([]calibration.Point, len(result.Points))
	for i, p := range result.Points {
		pts[i] = calibration.Point{Pitch: pitch.Unit(p.Pitch), Code: p.Code}
	}
	return calibration.NewTable(pts)
}

func (c *client) showCalibration(channel int) error {
	tbl, err := c.fetchCalibration(channel)
	if err != nil {
		return err
	}
	color.Cyan("channel %d calibration:", channel)
	for _, p := range tbl.Points() {
		fmt.Printf("  %6d -> %5d\n", p.Pitch, p.Code)
	}
	return nil
}

func (c *client) setCalibration(channel int, raw string) error {
	if raw == "" {
		return fmt.Errorf("-points is required for cal-set")
	}
	tbl, err := config.ParsePoints("cal-set", raw)
	if err != nil {
		return err
	}
	pts := make([]map[string]any, 0, len(tbl.Points()))
	for _, p := range tbl.Points() {
		pts = append(pts, map[string]any{"pitch": p.Pitch, "code": p.Code})
	}
	return c.call("quantizer.calibration.set",
		map[string]any{"channel": channel, "points": pts}, nil)
}

// saveCalibration pulls every channel's table from the daemon and
// persists them into the settings file's autosave block.
func (c *client) saveCalibration(configFile string) error {
	var info struct {
		Channels int `json:"channels"`
	}
	if err := c.call("server.info", nil, &info); err != nil {
		return err
	}

	tables := make(map[int]*calibration.Table)
	for ch := 0; ch < info.Channels; ch++ {
		tbl, err := c.fetchCalibration(ch)
		if err != nil {
			return err
		}
		tables[ch] = tbl
	}

	if err := config.SaveCalibration(configFile, tables); err != nil {
		return err
	}
	color.Green("saved %d calibration tables to %s", len(tables), configFile)
	return nil
}
