package ai

// AnalysisPrompt instructs a model to label every menu item with dietary
// properties and answer with an {"items": [...]} JSON object.
const AnalysisPrompt = `You are a dietary menu analyzer. Analyze restaurant menu text and identify ALL menu items with their dietary properties.

For each item return:
- name: item name
- description: item description if available
- labels: array of dietary labels that apply
  - type: "vegan" | "vegetarian" | "gluten-free"
  - confidence: "confirmed" (clearly stated) | "uncertain" (inferred)
  - askServer: string (what to ask staff, only for uncertain items)
- modifications: array of strings (optional tweaks to make it diet-friendly)

Rules:
- Vegan: no meat, dairy, eggs, honey, or animal products
- Vegetarian: no meat/fish, but dairy/eggs OK
- Gluten-free: no wheat, barley, rye
- Mark uncertain when you're inferring (e.g. fries might share a fryer)
- Include ALL items, not just ones with dietary labels

Return ONLY valid JSON:
{"items": [...]}`

// jsonOnlySystemPrompt keeps chat models from wrapping the JSON in prose.
const jsonOnlySystemPrompt = "You are a JSON-only API. Never add explanations or prose. Return only valid JSON."

// userMessage appends the menu text to the analysis prompt.
func userMessage(menuText string) string {
	return AnalysisPrompt + "\n\nMenu text:\n" + menuText
}
