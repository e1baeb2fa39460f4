package analysis

const validReply = `{
  "sections": [
    {"type": "hero", "label": "Hero", "description": "Main visual", "position": "top", "elements": ["headline", "cta"]},
    {"type": "problem", "label": "Pain", "description": "Problem", "position": "upper", "elements": []},
    {"type": "features", "label": "Features", "description": "List {of} features", "position": "middle", "elements": ["a"]},
    {"type": "social_proof", "label": "Logos", "description": "Clients", "position": "lower", "elements": ["logos"]},
    {"type": "cta", "label": "Signup", "description": "Final CTA", "position": "bottom", "elements": ["button"]}
  ],
  "informationDesign": {
    "firstViewSummary": "Clear value proposition",
    "ctaCount": 3,
    "ctaPositions": ["hero", "middle", "bottom"],
    "textVisualRatio": "60:40",
    "structureScore": 74,
    "strengths": ["clear headline"],
    "improvements": ["more proof"]
  },
  "designTone": {
    "colorPalette": ["#1a1a2e", "#E94560", "#fff"],
    "colorMood": "trustworthy",
    "fontStyle": "sans-serif",
    "whitespaceLevel": "medium",
    "overallImpression": "clean",
    "designScore": 82
  },
  "summary": "Solid LP."
}`
