package audio

import (
	"context"
	"fmt"
	"math"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

var percentRe = regexp.MustCompile(`(\d+)\s*%`)

const (
	duckFactor    = 0.3
	duckMinVolume = 10
	duckFade      = 150 * time.Millisecond
)

type sinkInput struct {
	id      int
	volume  int
	appName string
}

// Ducker lowers the volume of other applications' output streams while
// the assistant speaks, and restores them afterwards. It drives the
// PulseAudio command line tools, so it is a no-op on systems without
// pactl.
type Ducker struct {
	mu       sync.Mutex
	active   bool
	selfName string
	original map[int]int
}

// NewDucker creates a ducker that leaves streams named selfName alone.
func NewDucker(selfName string) *Ducker {
	return &Ducker{
		selfName: selfName,
		original: make(map[int]int),
	}
}

// Duck fades every foreign stream down to a fraction of its current
// volume. Idempotent until Restore is called.
func (d *Ducker) Duck(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.active {
		return nil
	}

	streams, err := listSinkInputs(ctx)
	if err != nil {
		return err
	}

	d.original = make(map[int]int)
	var targets []volumeRamp
	for _, s := range streams {
		if s.appName == d.selfName {
			continue
		}
		to := int(math.Round(float64(s.volume) * duckFactor))
		if to < duckMinVolume {
			to = duckMinVolume
		}
		d.original[s.id] = s.volume
		targets = append(targets, volumeRamp{id: s.id, from: s.volume, to: to})
	}

	if err := rampVolumes(ctx, targets, duckFade); err != nil {
		return err
	}
	d.active = true
	return nil
}

// Restore fades the previously ducked streams back to their original
// volumes. Streams that appeared after Duck are left untouched.
func (d *Ducker) Restore(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.active {
		return nil
	}

	streams, err := listSinkInputs(ctx)
	if err != nil {
		return err
	}

	var targets []volumeRamp
	for _, s := range streams {
		orig, ok := d.original[s.id]
		if !ok {
			continue
		}
		targets = append(targets, volumeRamp{id: s.id, from: s.volume, to: orig})
	}

	if err := rampVolumes(ctx, targets, duckFade); err != nil {
		return err
	}
	d.original = make(map[int]int)
	d.active = false
	return nil
}

type volumeRamp struct {
	id   int
	from int
	to   int
}

func rampVolumes(ctx context.Context, targets []volumeRamp, duration time.Duration) error {
	if len(targets) == 0 {
		return nil
	}

	const step = 10 * time.Millisecond
	steps := int(duration / step)
	if steps < 1 {
		steps = 1
	}

	for i := 1; i <= steps; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		frac := float64(i) / float64(steps)
		for _, t := range targets {
			v := int(math.Round(float64(t.from) + float64(t.to-t.from)*frac))
			if err := setSinkInputVolume(ctx, t.id, v); err != nil {
				return fmt.Errorf("set volume id=%d: %w", t.id, err)
			}
		}
		if i < steps {
			time.Sleep(duration / time.Duration(steps))
		}
	}
	return nil
}

func listSinkInputs(ctx context.Context) ([]sinkInput, error) {
	out, err := exec.CommandContext(ctx, "pactl", "list", "sink-inputs").Output()
	if err != nil {
		return nil, fmt.Errorf("pactl list sink-inputs: %w", err)
	}
	return parseSinkInputs(string(out)), nil
}

func parseSinkInputs(out string) []sinkInput {
	blocks := strings.Split(out, "Sink Input #")
	var res []sinkInput
	for _, block := range blocks[1:] {
		newline := strings.IndexByte(block, '\n')
		if newline <= 0 {
			continue
		}
		id, err := strconv.Atoi(strings.TrimSpace(block[:newline]))
		if err != nil {
			continue
		}

		s := sinkInput{id: id}
		for _, line := range strings.Split(block[newline+1:], "\n") {
			line = strings.TrimSpace(line)
			if strings.HasPrefix(line, "Volume:") && s.volume == 0 {
				if m := percentRe.FindStringSubmatch(line); len(m) >= 2 {
					s.volume, _ = strconv.Atoi(m[1])
				}
			}
			if strings.HasPrefix(line, "application.name =") && s.appName == "" {
				if i := strings.Index(line, `"`); i >= 0 {
					rest := line[i+1:]
					if j := strings.Index(rest, `"`); j >= 0 {
						s.appName = rest[:j]
					}
				}
			}
		}
		if s.volume == 0 && s.appName == "" {
			continue
		}
		res = append(res, s)
	}
	return res
}

func setSinkInputVolume(ctx context.Context, id, percent int) error {
	if percent < 0 {
		percent = 0
	}
	if percent > 150 {
		percent = 150
	}
	return exec.CommandContext(ctx, "pactl",
		"set-sink-input-volume", strconv.Itoa(id), fmt.Sprintf("%d%%", percent)).Run()
}
