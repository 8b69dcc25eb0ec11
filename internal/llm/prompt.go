package llm

import (
	"strings"
	"unicode/utf8"

	"github.com/joseph-ayodele/ratecon-intake/constants"
)

// ExtractionSystemPrompt frames the model as a logistics specialist.
const ExtractionSystemPrompt = "You are a US Logistics Specialist. You ignore garbage text and extract only business data into JSON."

// TemplateSystemPrompt asks for template code only.
const TemplateSystemPrompt = "You output only clean Jinja2 code based on examples."

// BuildExtractionPrompt composes the user message: disambiguation rules, the JSON shape and
// a bounded excerpt of the document.
func BuildExtractionPrompt(text string, maxChars int) string {
	if maxChars <= 0 {
		maxChars = constants.AIMaxPromptChars
	}
	excerpt := Excerpt(text, maxChars)

	parts := []string{
		"Analyze this US Logistics Rate Confirmation.",
		"Extract data with high precision. RETURN ONLY VALID JSON.",
		"",
		"Guidelines:",
		"1. BROKER: the company name at the very top (e.g., RYAN TRANSPORTATION, ECHO, TQL). Return the full legal company name. DO NOT return MC numbers, phone or fax lines.",
		"2. LOAD_NUMBER: look for 'Load #', 'Order #', 'Reference #' or 'PRO #'. It is usually 6-10 characters.",
		"3. RATE: look for 'Total Carrier Pay' or 'Total:'. Ignore 'Tracking Hold', accessorials and individual fee lines.",
		"4. STOPS:",
		"   - PU (Pickups): 'PU 1', 'Shipper' or 'Origin'.",
		"   - DEL (Deliveries): 'SO 1', 'DEL 1', 'Consignee' or 'Destination'.",
		"   - For each stop extract Facility Name, Full Address (Street, City, ST, Zip) and Appointment Time.",
		"   - Keep stops in document order.",
		"5. MILES: total distance between origin and destination, if printed.",
		"Use an empty string for anything not present. Never output null.",
		"",
		"Return this JSON:",
		`{`,
		`  "broker": "Full Legal Company Name",`,
		`  "load_number": "ID only",`,
		`  "pickups": [{ "facility": "Name", "address": "Full Address", "time": "Date/Time" }],`,
		`  "deliveries": [{ "facility": "Name", "address": "Full Address", "time": "Date/Time" }],`,
		`  "rate": "Total amount (e.g. 1500.00)",`,
		`  "total_miles": "Distance"`,
		`}`,
		"",
		"TEXT TO ANALYZE:",
		excerpt,
	}
	return strings.Join(parts, "\n")
}

// BuildTemplatePrompt asks the model to turn a filled-in example into a template.
func BuildTemplatePrompt(example string) string {
	parts := []string{
		"You help a logistics bot. The user sent an example of the message format they want.",
		"Convert the example into a Jinja2 template for the bot.",
		"",
		"Rules:",
		"1. Replace the broker name with {{ broker }}.",
		"2. Replace the load ID with {{ load_number }}.",
		"3. Replace the rate with {{ rate }}.",
		"4. Replace the total distance with {{ total_miles }}.",
		"5. Keep only one sample of each PU/DEL block and wrap it in a loop:",
		"   Pickups: {% for p in pickups %} ... {% endfor %}",
		"   Deliveries: {% for d in deliveries %} ... {% endfor %}",
		"6. Inside a stop use {{ p.facility }}, {{ p.address }}, {{ p.time }} (or d.* for deliveries). {{ loop.index }} numbers the stops.",
		"7. Leave every other fixed word and symbol untouched.",
		"",
		"USER EXAMPLE:",
		example,
		"",
		"RETURN ONLY THE FINISHED TEMPLATE:",
	}
	return strings.Join(parts, "\n")
}

// Excerpt returns at most maxChars runes of s without splitting a UTF-8 sequence.
func Excerpt(s string, maxChars int) string {
	if maxChars <= 0 || utf8.RuneCountInString(s) <= maxChars {
		return s
	}
	n := 0
	for i := range s {
		if n == maxChars {
			return s[:i]
		}
		n++
	}
	return s
}
