package database

// Schema contains all SQL statements for creating tables and indexes
const Schema = `
-- Participants: club members identified by their Strava athlete ID
CREATE TABLE IF NOT EXISTS participants (
    participant_id INTEGER PRIMARY KEY,

    first_name TEXT NOT NULL DEFAULT '',
    last_name TEXT NOT NULL DEFAULT '',

    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

-- OAuth tokens: at most one live token per participant. Deleted on
-- deauthorization; the participant row and their results survive.
CREATE TABLE IF NOT EXISTS oauth_tokens (
    participant_id INTEGER PRIMARY KEY,

    access_token TEXT NOT NULL,
    refresh_token TEXT NOT NULL,
    expires_at INTEGER NOT NULL,

    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,

    FOREIGN KEY (participant_id) REFERENCES participants(participant_id) ON DELETE CASCADE
);

-- Seasons group competition weeks
CREATE TABLE IF NOT EXISTS seasons (
    season_id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    created_at INTEGER NOT NULL
);

-- Segments: immutable reference data mirrored from Strava on demand
CREATE TABLE IF NOT EXISTS segments (
    segment_id INTEGER PRIMARY KEY,
    name TEXT NOT NULL DEFAULT '',
    distance_m REAL NOT NULL DEFAULT 0,
    avg_grade REAL NOT NULL DEFAULT 0,
    city TEXT NOT NULL DEFAULT '',
    updated_at INTEGER NOT NULL
);

-- Weeks: one competition unit. Deleting a week cascades to its
-- activities and results.
CREATE TABLE IF NOT EXISTS weeks (
    week_id INTEGER PRIMARY KEY AUTOINCREMENT,
    season_id INTEGER NOT NULL,
    segment_id INTEGER NOT NULL,
    required_laps INTEGER NOT NULL,
    start_at INTEGER NOT NULL,
    end_at INTEGER NOT NULL,
    created_at INTEGER NOT NULL,

    FOREIGN KEY (season_id) REFERENCES seasons(season_id) ON DELETE CASCADE
);

-- Activities: the current best qualifying activity per (week, participant).
-- A better candidate overwrites the row; a delete upstream removes it.
CREATE TABLE IF NOT EXISTS activities (
    week_id INTEGER NOT NULL,
    participant_id INTEGER NOT NULL,

    external_activity_id INTEGER NOT NULL,
    total_time_seconds INTEGER NOT NULL,
    validation_status TEXT NOT NULL DEFAULT 'valid',
    fetched_at INTEGER NOT NULL,

    PRIMARY KEY (week_id, participant_id),
    FOREIGN KEY (week_id) REFERENCES weeks(week_id) ON DELETE CASCADE,
    FOREIGN KEY (participant_id) REFERENCES participants(participant_id) ON DELETE CASCADE
);

-- Segment efforts: exactly the required_laps fastest efforts from the
-- stored activity on the week's segment.
CREATE TABLE IF NOT EXISTS segment_efforts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    week_id INTEGER NOT NULL,
    participant_id INTEGER NOT NULL,
    elapsed_seconds INTEGER NOT NULL,
    pr_achieved BOOLEAN NOT NULL DEFAULT 0,

    FOREIGN KEY (week_id, participant_id) REFERENCES activities(week_id, participant_id) ON DELETE CASCADE
);

-- Results: derived rows, wholly recomputed by the scoring engine
CREATE TABLE IF NOT EXISTS results (
    week_id INTEGER NOT NULL,
    participant_id INTEGER NOT NULL,
    rank INTEGER NOT NULL,
    total_time_seconds INTEGER NOT NULL,
    points INTEGER NOT NULL,
    computed_at INTEGER NOT NULL,

    PRIMARY KEY (week_id, participant_id),
    FOREIGN KEY (week_id) REFERENCES weeks(week_id) ON DELETE CASCADE
);

-- Webhook events: write-once ledger of every push notification received
CREATE TABLE IF NOT EXISTS webhook_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,

    object_type TEXT NOT NULL,
    object_id INTEGER NOT NULL,
    aspect_type TEXT NOT NULL,
    owner_id INTEGER NOT NULL,
    subscription_id INTEGER NOT NULL,
    event_time INTEGER NOT NULL,

    updates TEXT,          -- JSON object
    raw_json TEXT NOT NULL, -- Complete event payload

    processed BOOLEAN NOT NULL DEFAULT 0,
    processed_at INTEGER,
    error TEXT,

    received_at INTEGER NOT NULL
);

-- Subscription: singleton record of the active push registration
CREATE TABLE IF NOT EXISTS subscriptions (
    id INTEGER PRIMARY KEY,
    callback_url TEXT NOT NULL,
    created_at INTEGER NOT NULL
);

-- Indexes
CREATE INDEX IF NOT EXISTS idx_weeks_season ON weeks(season_id);
CREATE INDEX IF NOT EXISTS idx_weeks_window ON weeks(start_at, end_at);
CREATE INDEX IF NOT EXISTS idx_activities_external ON activities(external_activity_id);
CREATE INDEX IF NOT EXISTS idx_efforts_activity ON segment_efforts(week_id, participant_id);
CREATE INDEX IF NOT EXISTS idx_webhook_events_processed ON webhook_events(processed);
CREATE INDEX IF NOT EXISTS idx_webhook_events_object ON webhook_events(object_type, object_id);
CREATE INDEX IF NOT EXISTS idx_webhook_events_owner ON webhook_events(owner_id);
CREATE INDEX IF NOT EXISTS idx_webhook_events_event_time ON webhook_events(event_time DESC);
`
