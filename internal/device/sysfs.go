// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package device discovers V4L2 capture devices and captures frames from them.
package device

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/ManuGH/capsync/internal/domain/session/model"
)

const (
	DefaultSysfsRoot = "/sys/class/video4linux"
	DefaultDevDir    = "/dev"
	DefaultPattern   = "video*"
)

var (
	ErrNoSysfs = errors.New("video4linux sysfs class not found")

	usbBusDir   = regexp.MustCompile(`^usb\d+$`)
	videoNumber = regexp.MustCompile(`video(\d+)$`)
)

// Scanner lists capture nodes from the video4linux sysfs class. Each node is
// keyed by its bus info, e.g. "usb-0000:00:14.0-1", which stays stable while
// the /dev/videoN number changes across replugs.
type Scanner struct {
	Root    string
	DevDir  string
	Pattern string
}

// NewScanner returns a scanner over the default sysfs and /dev locations.
func NewScanner() *Scanner {
	return &Scanner{Root: DefaultSysfsRoot, DevDir: DefaultDevDir, Pattern: DefaultPattern}
}

// Scan implements ports.Inventory. Metadata nodes (index != 0) are skipped so a
// UVC camera contributes only its capture node.
func (s *Scanner) Scan(ctx context.Context) ([]model.Entry, error) {
	root := s.Root
	if root == "" {
		root = DefaultSysfsRoot
	}
	pattern := s.Pattern
	if pattern == "" {
		pattern = DefaultPattern
	}
	devDir := s.DevDir
	if devDir == "" {
		devDir = DefaultDevDir
	}

	if _, err := os.Stat(root); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNoSysfs, root)
		}
		return nil, err
	}
	matches, err := filepath.Glob(filepath.Join(root, pattern))
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", root, err)
	}
	sort.Slice(matches, func(i, j int) bool {
		return deviceNumber(matches[i]) < deviceNumber(matches[j])
	})

	var out []model.Entry
	for _, node := range matches {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		if idx, ok := readAttr(node, "index"); ok && idx != "0" {
			continue
		}
		key, err := busInfo(filepath.Join(node, "device"))
		if err != nil {
			continue
		}
		name, _ := readAttr(node, "name")
		base := filepath.Base(node)
		out = append(out, model.Entry{
			Key:    key,
			Path:   filepath.Join(devDir, base),
			Name:   name,
			Driver: driverName(filepath.Join(node, "device")),
		})
	}
	return out, nil
}

// busInfo derives the V4L2 bus info string from the node's device link.
// USB devices map to "usb-<controller>-<devpath>"; anything else falls back to
// "platform:<device dir>".
func busInfo(deviceLink string) (string, error) {
	resolved, err := filepath.EvalSymlinks(deviceLink)
	if err != nil {
		return "", err
	}
	comps := strings.Split(filepath.ToSlash(resolved), "/")
	for i, c := range comps {
		if !usbBusDir.MatchString(c) || i == 0 || i+1 >= len(comps) {
			continue
		}
		controller := comps[i-1]
		usbDev := comps[i+1]
		// "1-1.2" is bus 1, port path 1.2
		if _, devpath, ok := strings.Cut(usbDev, "-"); ok && devpath != "" {
			return "usb-" + controller + "-" + devpath, nil
		}
	}
	return "platform:" + filepath.Base(resolved), nil
}

func driverName(deviceLink string) string {
	target, err := os.Readlink(filepath.Join(deviceLink, "driver"))
	if err != nil {
		return ""
	}
	return filepath.Base(target)
}

func readAttr(node, attr string) (string, bool) {
	b, err := os.ReadFile(filepath.Join(node, attr))
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(string(b)), true
}

func deviceNumber(path string) int {
	m := videoNumber.FindStringSubmatch(path)
	if len(m) < 2 {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return n
}
