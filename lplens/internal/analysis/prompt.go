// CLAUDE:SUMMARY Prompt contract shared by the image and text paths: JSON shape, closed enumerations, score ranges, reply language.
package analysis

import (
	"fmt"
	"strings"
)

// Language selects the language the service writes free-text fields in.
type Language string

const (
	LangJapanese Language = "ja"
	LangEnglish  Language = "en"
)

// TextInput is the metadata available on the fallback path.
type TextInput struct {
	URL         string
	Title       string
	Description string
	Headings    []string
	Excerpt     string
}

const schemaExample = `{
  "sections": [
    {
      "type": "hero",
      "label": "...",
      "description": "...",
      "position": "top",
      "elements": ["...", "..."]
    }
  ],
  "informationDesign": {
    "firstViewSummary": "...",
    "ctaCount": 3,
    "ctaPositions": ["...", "..."],
    "textVisualRatio": "60:40",
    "structureScore": 75,
    "strengths": ["...", "..."],
    "improvements": ["...", "..."]
  },
  "designTone": {
    "colorPalette": ["#1a1a2e", "#e94560", "#ffffff"],
    "colorMood": "...",
    "fontStyle": "sans-serif",
    "whitespaceLevel": "medium",
    "overallImpression": "...",
    "designScore": 78
  },
  "summary": "..."
}`

type promptText struct {
	role         string
	imageTask    string
	textTask     string
	textCaveat   string
	replyRule    string
	sectionTypes map[SectionType]string
	positions    map[Position]string
	scoreRule    string
	fields       func(in TextInput) string
	closing      string
}

var prompts = map[Language]promptText{
	LangJapanese: {
		role:       "あなたはランディングページ（LP）の構造とデザインを分析する専門家です。",
		imageTask:  "添付したLPのフルページスクリーンショットを分析し、セクション構成・情報設計・デザイントーンを日本語でまとめてください。",
		textTask:   "スクリーンショットを取得できなかったため、以下のURLとページ情報からLPの構造を推定して分析してください。",
		textCaveat: "推定分析のため確信度は低くなります。colorPalette は空配列、designScore は 0 とし、summary でメタデータからの推定であることと再分析の推奨を説明してください。",
		replyRule:  "返答は次の形式のJSONオブジェクトのみとし、説明文やマークダウン（コードブロックを含む）は一切付けないでください。",
		sectionTypes: map[SectionType]string{
			SectionHero:        "ファーストビューのメインビジュアルとキャッチコピー",
			SectionProblem:     "課題・悩みの提起",
			SectionSolution:    "解決策の提示",
			SectionFeatures:    "機能・特徴",
			SectionSocialProof: "実績・導入事例・口コミ",
			SectionPricing:     "料金プラン",
			SectionFAQ:         "よくある質問",
			SectionCTA:         "申し込み・問い合わせへの誘導",
			SectionOther:       "上記以外",
		},
		positions: map[Position]string{
			PositionTop:    "ページ上端から0〜20%",
			PositionUpper:  "20〜40%",
			PositionMiddle: "40〜60%",
			PositionLower:  "60〜80%",
			PositionBottom: "80〜100%",
		},
		scoreRule: "structureScore と designScore は0〜100の整数、ctaCount は0以上の整数、colorPalette は #RRGGBB 形式で記述してください。sections はページの上から順に並べてください。",
		fields: func(in TextInput) string {
			var b strings.Builder
			fmt.Fprintf(&b, "URL: %s\nタイトル: %s\n説明: %s\n", in.URL, in.Title, in.Description)
			if len(in.Headings) > 0 {
				fmt.Fprintf(&b, "見出し:\n- %s\n", strings.Join(in.Headings, "\n- "))
			}
			if in.Excerpt != "" {
				fmt.Fprintf(&b, "本文抜粋:\n%s\n", in.Excerpt)
			}
			return b.String()
		},
		closing: "このLPを分析してください。",
	},
	LangEnglish: {
		role:       "You are an expert in landing page (LP) structure and design analysis.",
		imageTask:  "Analyze the attached full-page screenshot of the LP and describe its section layout, information design and design tone in English.",
		textTask:   "No screenshot could be captured. Infer the LP structure from the URL and page information below and analyze it.",
		textCaveat: "This is a low-confidence estimate: use an empty colorPalette, a designScore of 0, and explain in the summary that it is inferred from metadata and that re-analysis is recommended.",
		replyRule:  "Reply with a single JSON object in the following shape and nothing else: no prose, no markdown, no code fences.",
		sectionTypes: map[SectionType]string{
			SectionHero:        "first view, main visual and headline",
			SectionProblem:     "problem statement",
			SectionSolution:    "proposed solution",
			SectionFeatures:    "features and benefits",
			SectionSocialProof: "testimonials, logos, case studies",
			SectionPricing:     "pricing plans",
			SectionFAQ:         "frequently asked questions",
			SectionCTA:         "call to action",
			SectionOther:       "anything else",
		},
		positions: map[Position]string{
			PositionTop:    "0-20% from the top",
			PositionUpper:  "20-40%",
			PositionMiddle: "40-60%",
			PositionLower:  "60-80%",
			PositionBottom: "80-100%",
		},
		scoreRule: "structureScore and designScore are integers from 0 to 100, ctaCount is a non-negative integer, colorPalette entries are #RRGGBB. List sections in top-to-bottom page order.",
		fields: func(in TextInput) string {
			var b strings.Builder
			fmt.Fprintf(&b, "URL: %s\nTitle: %s\nDescription: %s\n", in.URL, in.Title, in.Description)
			if len(in.Headings) > 0 {
				fmt.Fprintf(&b, "Headings:\n- %s\n", strings.Join(in.Headings, "\n- "))
			}
			if in.Excerpt != "" {
				fmt.Fprintf(&b, "Body excerpt:\n%s\n", in.Excerpt)
			}
			return b.String()
		},
		closing: "Analyze this LP.",
	},
}

func promptFor(lang Language) promptText {
	if p, ok := prompts[lang]; ok {
		return p
	}
	return prompts[LangJapanese]
}

// contract is the part shared by both paths: shape, enumerations, ranges.
func (p promptText) contract() string {
	var b strings.Builder
	b.WriteString(p.replyRule)
	b.WriteString("\n\n")
	b.WriteString(schemaExample)
	b.WriteString("\n\nsections[].type:\n")
	for _, t := range SectionTypes {
		fmt.Fprintf(&b, "- %s: %s\n", t, p.sectionTypes[t])
	}
	b.WriteString("\nsections[].position:\n")
	for _, pos := range Positions {
		fmt.Fprintf(&b, "- %s: %s\n", pos, p.positions[pos])
	}
	fmt.Fprintf(&b, "\ndesignTone.fontStyle: %s\n", joinEnum(FontStyles))
	fmt.Fprintf(&b, "designTone.whitespaceLevel: %s\n\n", joinEnum(WhitespaceLevels))
	b.WriteString(p.scoreRule)
	return b.String()
}

// ImagePrompt is the instruction sent along with a screenshot.
func ImagePrompt(lang Language) string {
	p := promptFor(lang)
	return p.role + "\n" + p.imageTask + "\n\n" + p.contract()
}

// TextPrompt is the instruction for the metadata fallback path.
func TextPrompt(lang Language, in TextInput) string {
	p := promptFor(lang)
	return p.role + "\n" + p.textTask + "\n" + p.textCaveat + "\n\n" + p.contract() +
		"\n\n" + p.fields(in) + "\n" + p.closing
}

func joinEnum[T ~string](vals []T) string {
	s := make([]string, len(vals))
	for i, v := range vals {
		s[i] = string(v)
	}
	return strings.Join(s, " | ")
}
