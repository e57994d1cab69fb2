package instruct

import "fmt"

const promptTemplate = `You are Tool-E, a helpful robot assistant.
User Goal: "%[1]s"
Target Language: "%[2]s"

Look at the image.
1. IDENTIFY the device.
2. CHECK for IMMEDIATE physical hazards (fire, shock, gas).
   * IGNORE general health advice (volume, posture).
3. Identify the EXACT controls/buttons needed.

CRITICAL: Return pure JSON.

JSON Structure:
{
    "device_name": "Name of the object (Translated to %[2]s)",
    "risk_alert": "Warning text (Translated to %[2]s) or null",
    "steps": [
        {
            "order": 1,
            "text": "Instruction (Translated to %[2]s)",
            "action_type": "tap",
            "box_2d": [ymin, xmin, ymax, xmax]
        }
    ]
}

RULES:
* "action_type": "tap", "hold", "rotate", "swipe".
* box_2d: 0-1000 scale.
`

// BuildPrompt renders the instruction prompt for one goal and target
// language display name.
func BuildPrompt(goal, language string) string {
	return fmt.Sprintf(promptTemplate, goal, language)
}
