package models

// PlanDocumentSchema returns the JSON Schema that plan documents must satisfy
// after planner aliases (task_description, step_id, dependencies) have been
// normalized. Step ids may be strings or integers; string ids cannot contain
// dots or whitespace because a dot separates the step id from the field path
// in a reference.
func PlanDocumentSchema() string {
	return `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "title": "Plan Document",
  "type": "object",
  "required": ["steps"],
  "properties": {
    "goal": {
      "type": "string",
      "description": "Natural-language task the plan answers"
    },
    "steps": {
      "type": "array",
      "minItems": 1,
      "items": { "$ref": "#/$defs/step" }
    }
  },
  "$defs": {
    "stepID": {
      "oneOf": [
        { "type": "string", "pattern": "^[^.\\s]+$" },
        { "type": "integer", "minimum": 0, "maximum": 9007199254740991 }
      ]
    },
    "step": {
      "type": "object",
      "required": ["id", "capability"],
      "properties": {
        "id": { "$ref": "#/$defs/stepID" },
        "capability": { "type": "string", "minLength": 1 },
        "description": { "type": "string" },
        "parameters": { "type": "object" },
        "depends_on": {
          "type": "array",
          "items": { "$ref": "#/$defs/stepID" }
        },
        "optional": { "type": "boolean" }
      }
    }
  }
}`
}
