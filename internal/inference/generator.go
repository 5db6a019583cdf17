// Package inference classifies device identifiers into physical access
// attributes using ordered pattern tables.
package inference

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/rpattn/accessmap/internal/domain"
)

const (
	baseConfidence    = 0.5
	detectionBonus    = 0.15
	fallbackPenalty   = 0.05
	nameReasoningNote = "Generated readable name"
)

// Generator infers device attributes. It holds no state besides its logger
// and is safe for concurrent use.
type Generator struct {
	logger *zap.Logger
}

// NewGenerator wires a generator. A nil logger disables logging.
func NewGenerator(logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{logger: logger}
}

var defaultGenerator = NewGenerator(nil)

// GenerateDeviceAttributes classifies deviceID with a non-logging generator.
func GenerateDeviceAttributes(deviceID string) domain.DeviceAttributes {
	return defaultGenerator.GenerateDeviceAttributes(deviceID)
}

// GenerateAll classifies every distinct id with a non-logging generator.
func GenerateAll(deviceIDs []string) domain.DeviceMappings {
	return defaultGenerator.GenerateAll(deviceIDs)
}

// trail accumulates reasoning and tracks how many entries were detections
// and how many were defaults.
type trail struct {
	entries    []string
	detections int
	fallbacks  int
}

func (t *trail) detected(format string, args ...any) {
	t.entries = append(t.entries, fmt.Sprintf(format, args...))
	t.detections++
}

func (t *trail) fallback(format string, args ...any) {
	t.entries = append(t.entries, fmt.Sprintf(format, args...))
	t.fallbacks++
}

func (t *trail) note(format string, args ...any) {
	t.entries = append(t.entries, fmt.Sprintf(format, args...))
}

func (t *trail) confidence() float64 {
	score := baseConfidence + detectionBonus*float64(t.detections) - fallbackPenalty*float64(t.fallbacks)
	score = math.Max(domain.MinConfidence, math.Min(domain.MaxConfidence, score))
	return math.Round(score*100) / 100
}

// GenerateDeviceAttributes never fails: every stage has a deterministic default.
func (g *Generator) GenerateDeviceAttributes(deviceID string) domain.DeviceAttributes {
	lower := strings.ToLower(deviceID)
	reasoning := &trail{}

	floor := extractFloor(deviceID, reasoning)
	security := securityLevel(lower, reasoning)
	flags := accessFlags(lower, reasoning)
	name := DeviceName(deviceID)
	reasoning.note(nameReasoningNote)

	confidence := reasoning.confidence()
	attrs := domain.DeviceAttributes{
		DeviceID:      deviceID,
		DeviceName:    name,
		FloorNumber:   floor,
		SecurityLevel: security,
		IsEntry:       flags[accessEntry],
		IsExit:        flags[accessExit],
		IsElevator:    flags[accessElevator],
		IsStairwell:   flags[accessStairwell],
		IsFireEscape:  flags[accessFireEscape],
		Confidence:    &confidence,
		AIReasoning:   reasoning.entries,
	}

	g.logger.Debug("Classified device",
		zap.String("device_id", deviceID),
		zap.Int("floor", floor),
		zap.Int("security_level", security),
		zap.Float64("confidence", confidence),
		zap.Int("detections", reasoning.detections),
		zap.Int("defaults", reasoning.fallbacks))

	return attrs
}

// GenerateAll classifies each distinct id once. Empty ids are skipped.
func (g *Generator) GenerateAll(deviceIDs []string) domain.DeviceMappings {
	unique := make([]string, 0, len(deviceIDs))
	seen := make(map[string]struct{}, len(deviceIDs))
	for _, id := range deviceIDs {
		if strings.TrimSpace(id) == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	sort.Strings(unique)

	out := make(domain.DeviceMappings, len(unique))
	for _, id := range unique {
		out[id] = g.GenerateDeviceAttributes(id)
	}

	g.logger.Info("Generated device attributes", zap.Int("devices", len(out)))
	return out
}

func extractFloor(deviceID string, reasoning *trail) int {
	for _, rule := range floorRules {
		for _, match := range rule.pattern.FindAllStringSubmatch(deviceID, -1) {
			floor, err := strconv.Atoi(match[1])
			if err != nil || floor < domain.MinFloor || floor > domain.MaxFloor {
				continue
			}
			reasoning.detected("Floor %d detected from %s pattern %q", floor, rule.name, strings.TrimLeft(match[0], "_- "))
			return floor
		}
	}
	reasoning.fallback("Floor %d (default, no floor pattern matched)", domain.DefaultFloor)
	return domain.DefaultFloor
}

func securityLevel(lower string, reasoning *trail) int {
	for _, rule := range securityRules {
		if keyword := rule.pattern.FindString(lower); keyword != "" {
			reasoning.detected("Security level %d detected for %s (%q)", rule.level, rule.category, keyword)
			return rule.level
		}
	}
	reasoning.fallback("Security level %d (default, no security pattern matched)", domain.DefaultSecurityLevel)
	return domain.DefaultSecurityLevel
}

func accessFlags(lower string, reasoning *trail) map[accessType]bool {
	flags := make(map[accessType]bool, len(accessRules))
	for _, rule := range accessRules {
		if rule.pattern.MatchString(lower) {
			flags[rule.kind] = true
			reasoning.detected("Detected %s access", rule.kind)
		}
	}
	if flags[accessFireEscape] && !flags[accessExit] {
		flags[accessExit] = true
		reasoning.note("Fire escape implies exit access")
	}
	return flags
}

// DeviceName turns a raw device id into a readable name.
func DeviceName(deviceID string) string {
	spaced := strings.Map(func(r rune) rune {
		if r == '_' || r == '-' {
			return ' '
		}
		return r
	}, deviceID)

	var b strings.Builder
	run := 0
	for _, r := range spaced {
		if unicode.IsDigit(r) && run >= 2 {
			b.WriteRune(' ')
		}
		if unicode.IsLetter(r) {
			run++
		} else {
			run = 0
		}
		b.WriteRune(r)
	}

	words := strings.Fields(b.String())
	for i, word := range words {
		words[i] = capitalize(word)
	}
	return strings.Join(words, " ")
}

func capitalize(word string) string {
	if floorMarker.MatchString(word) {
		return strings.ToUpper(word)
	}
	runes := []rune(strings.ToLower(word))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
