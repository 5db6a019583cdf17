package inference

import "regexp"

type floorRule struct {
	name    string
	pattern *regexp.Regexp
}

// Floor rules are tried in order against the raw device id. The first
// capture group holds the floor digits.
var floorRules = []floorRule{
	{name: "level prefix", pattern: regexp.MustCompile(`[Ll](\d+)`)},
	{name: "floor suffix", pattern: regexp.MustCompile(`(\d+)[Ff]`)},
	{name: "floor keyword", pattern: regexp.MustCompile(`(?i)floor\D*?(\d+)`)},
	{name: "leading number", pattern: regexp.MustCompile(`^(\d+)_`)},
	{name: "room number", pattern: regexp.MustCompile(`_(\d)\d{2}_`)},
	{name: "trailing room number", pattern: regexp.MustCompile(`_(\d)\d{2}$`)},
}

type securityRule struct {
	category string
	level    int
	pattern  *regexp.Regexp
}

// Security rules overlap, so order matters: the first match wins.
var securityRules = []securityRule{
	{category: "public area", level: 2, pattern: regexp.MustCompile(`lobby|reception|public|entrance`)},
	{category: "elevator", level: 3, pattern: regexp.MustCompile(`elevator|lift`)},
	{category: "stairwell", level: 3, pattern: regexp.MustCompile(`stair`)},
	{category: "office", level: 4, pattern: regexp.MustCompile(`office|desk|workspace|room[_ ]?\d`)},
	{category: "meeting room", level: 5, pattern: regexp.MustCompile(`meeting|conference|boardroom`)},
	{category: "safety", level: 6, pattern: regexp.MustCompile(`emergency|fire|safety`)},
	{category: "executive", level: 7, pattern: regexp.MustCompile(`executive|ceo|president`)},
	{category: "infrastructure", level: 8, pattern: regexp.MustCompile(`server|data|network`)},
	{category: "restricted", level: 9, pattern: regexp.MustCompile(`secure|restricted|vault|safe`)},
}

type accessType string

const (
	accessEntry      accessType = "entry"
	accessExit       accessType = "exit"
	accessElevator   accessType = "elevator"
	accessStairwell  accessType = "stairwell"
	accessFireEscape accessType = "fire_escape"
)

type accessRule struct {
	kind    accessType
	pattern *regexp.Regexp
}

// Access flags are independent; every rule is evaluated.
var accessRules = []accessRule{
	{kind: accessEntry, pattern: regexp.MustCompile(`entry|entrance|lobby|front|main|(?:^|[^a-z])in(?:[^a-z]|$)`)},
	{kind: accessExit, pattern: regexp.MustCompile(`exit|egress|(?:^|[^a-z])out(?:[^a-z]|$)|back|rear|emergency`)},
	{kind: accessElevator, pattern: regexp.MustCompile(`elevator|lift|(?:^|[^a-z])elev`)},
	{kind: accessStairwell, pattern: regexp.MustCompile(`stair|step`)},
	{kind: accessFireEscape, pattern: regexp.MustCompile(`fire|escape|emergency.*exit`)},
}

var floorMarker = regexp.MustCompile(`^\d+[Ff]$`)
