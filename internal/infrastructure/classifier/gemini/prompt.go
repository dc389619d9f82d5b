package gemini

// safetyPrompt asks for a strictly structured verdict. The fence-stripping in
// parseVerdict still tolerates models that wrap the JSON anyway.
const safetyPrompt = `Analyze this video for content safety.
Check for violence, gore, nudity, hate speech, or dangerous activities.
Return a JSON object with this EXACT structure:
{
    "isSafe": boolean,
    "reason": "Detailed reason for the decision",
    "timestamp": "Timestamp of violation if any (e.g. 00:15) or null"
}
Do not include markdown formatting like ` + "```json" + `. Just the raw JSON.`
