package analysis

// SectionType classifies a page section.
type SectionType string

const (
	SectionHero        SectionType = "hero"
	SectionProblem     SectionType = "problem"
	SectionSolution    SectionType = "solution"
	SectionFeatures    SectionType = "features"
	SectionSocialProof SectionType = "social_proof"
	SectionPricing     SectionType = "pricing"
	SectionFAQ         SectionType = "faq"
	SectionCTA         SectionType = "cta"
	SectionOther       SectionType = "other"
)

// SectionTypes lists every accepted SectionType in prompt order.
var SectionTypes = []SectionType{
	SectionHero, SectionProblem, SectionSolution, SectionFeatures,
	SectionSocialProof, SectionPricing, SectionFAQ, SectionCTA, SectionOther,
}

// Position is the vertical band a section occupies.
type Position string

const (
	PositionTop    Position = "top"    // 0-20%
	PositionUpper  Position = "upper"  // 20-40%
	PositionMiddle Position = "middle" // 40-60%
	PositionLower  Position = "lower"  // 60-80%
	PositionBottom Position = "bottom" // 80-100%
)

// Positions lists every accepted Position from top to bottom.
var Positions = []Position{PositionTop, PositionUpper, PositionMiddle, PositionLower, PositionBottom}

// FontStyle is the dominant typeface family.
type FontStyle string

const (
	FontSerif     FontStyle = "serif"
	FontSansSerif FontStyle = "sans-serif"
	FontDisplay   FontStyle = "display"
	FontMixed     FontStyle = "mixed"
)

var FontStyles = []FontStyle{FontSerif, FontSansSerif, FontDisplay, FontMixed}

// WhitespaceLevel is the perceived density of the layout.
type WhitespaceLevel string

const (
	WhitespaceTight    WhitespaceLevel = "tight"
	WhitespaceMedium   WhitespaceLevel = "medium"
	WhitespaceSpacious WhitespaceLevel = "spacious"
)

var WhitespaceLevels = []WhitespaceLevel{WhitespaceTight, WhitespaceMedium, WhitespaceSpacious}

// Section is one block of the page, in top-to-bottom order.
type Section struct {
	Type        SectionType `json:"type"`
	Label       string      `json:"label"`
	Description string      `json:"description"`
	Position    Position    `json:"position"`
	Elements    []string    `json:"elements"`
}

// InformationDesign describes how the page conveys its message.
type InformationDesign struct {
	FirstViewSummary string   `json:"firstViewSummary"`
	CTACount         int      `json:"ctaCount"`
	CTAPositions     []string `json:"ctaPositions"`
	TextVisualRatio  string   `json:"textVisualRatio"`
	StructureScore   int      `json:"structureScore"`
	Strengths        []string `json:"strengths"`
	Improvements     []string `json:"improvements"`
}

// DesignTone describes the visual identity of the page.
type DesignTone struct {
	ColorPalette      []string        `json:"colorPalette"`
	ColorMood         string          `json:"colorMood"`
	FontStyle         FontStyle       `json:"fontStyle"`
	WhitespaceLevel   WhitespaceLevel `json:"whitespaceLevel"`
	OverallImpression string          `json:"overallImpression"`
	DesignScore       int             `json:"designScore"`
}

// Result is the structured analysis of one landing page. It is stored
// serialized on the snapshot.
type Result struct {
	Sections          []Section         `json:"sections"`
	InformationDesign InformationDesign `json:"informationDesign"`
	DesignTone        DesignTone        `json:"designTone"`
	Summary           string            `json:"summary"`
}

// Path names the acquisition path that produced a result.
type Path string

const (
	PathImage Path = "image"
	PathText  Path = "text"
)

func contains[T comparable](list []T, v T) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
