package keyboard

import (
	"math/bits"
	"sort"
	"strconv"
	"strings"
)

// Device describes an input device that looks like a keyboard.
type Device struct {
	Path string
	Name string
}

// hasKeys reports whether a sysfs key capability bitmap, as found in
// /sys/class/input/eventN/device/capabilities/key, has every code set.
// The bitmap is a list of hex words of the kernel's long size, most
// significant first.
func hasKeys(caps string, codes ...KeyCode) bool {
	fields := strings.Fields(caps)
	if len(fields) == 0 {
		return false
	}
	words := make([]uint64, len(fields))
	for i, f := range fields {
		w, err := strconv.ParseUint(f, 16, 64)
		if err != nil {
			return false
		}
		words[len(fields)-1-i] = w
	}
	for _, c := range codes {
		idx := int(c) / bits.UintSize
		if idx >= len(words) || words[idx]&(1<<(uint(c)%bits.UintSize)) == 0 {
			return false
		}
	}
	return true
}

// preferred reports whether a device name looks like a built-in or
// dedicated keyboard rather than a mouse with extra keys.
func preferred(name string) bool {
	lower := strings.ToLower(name)
	if strings.Contains(lower, "at translated") {
		return true
	}
	return strings.Contains(lower, "keyboard") && !strings.Contains(lower, "mouse")
}

// rank orders devices so preferred keyboards come first, keeping the
// discovery order otherwise.
func rank(devices []Device) []Device {
	out := append([]Device(nil), devices...)
	sort.SliceStable(out, func(i, j int) bool {
		return preferred(out[i].Name) && !preferred(out[j].Name)
	})
	return out
}
