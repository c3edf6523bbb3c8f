package outbox

const favoriteChangedSchema = `{
  "type": "object",
  "title": "FavoriteChanged",
  "properties": {
    "favorite_id": {"type": "string", "format": "uuid"},
    "user_id": {"type": "string"},
    "activity_id": {"type": "string", "format": "uuid"},
    "created_at": {"type": "string", "format": "date-time"},
    "updated_at": {"type": ["string", "null"], "format": "date-time"}
  },
  "required": ["favorite_id", "user_id", "activity_id", "created_at"],
  "additionalProperties": false
}`

const historyChangedSchema = `{
  "type": "object",
  "title": "HistoryChanged",
  "properties": {
    "entry_id": {"type": "string", "format": "uuid"},
    "user_id": {"type": "string"},
    "activity_id": {"type": "string", "format": "uuid"},
    "completed_at": {"type": "string", "format": "date-time"},
    "updated_at": {"type": ["string", "null"], "format": "date-time"}
  },
  "required": ["entry_id", "user_id", "activity_id", "completed_at"],
  "additionalProperties": false
}`

const prefsUpdatedSchema = `{
  "type": "object",
  "title": "PrefsUpdated",
  "properties": {
    "prefs_id": {"type": "string", "format": "uuid"},
    "user_id": {"type": "string"},
    "hidden_activity_ids": {"type": ["array", "null"], "items": {"type": "string", "format": "uuid"}},
    "updated_at": {"type": ["string", "null"], "format": "date-time"}
  },
  "required": ["prefs_id", "user_id"],
  "additionalProperties": false
}`
