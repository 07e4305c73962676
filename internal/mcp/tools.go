package mcp

import "github.com/mark3labs/mcp-go/mcp"

var writeToolDef = mcp.NewTool("draft_write",
	mcp.WithDescription("Persist a draft under a key, replacing any previous draft for that key. The envelope is stamped with the current time."),
	mcp.WithString("key", mcp.Required(), mcp.Description("Draft key without the storage prefix, e.g. \"permit-draft\"")),
	mcp.WithObject("data", mcp.Required(), mcp.Description("Form data to store as the draft")),
)

var readToolDef = mcp.NewTool("draft_read",
	mcp.WithDescription("Read a stored draft. Stale drafts are returned with stale=true and left in place."),
	mcp.WithString("key", mcp.Required(), mcp.Description("Draft key")),
	mcp.WithNumber("max_age_hours", mcp.Description("Staleness threshold in hours (default from config, 24)")),
)

var removeToolDef = mcp.NewTool("draft_remove",
	mcp.WithDescription("Delete a stored draft. Removing a missing draft is not an error."),
	mcp.WithString("key", mcp.Required(), mcp.Description("Draft key")),
)

var listToolDef = mcp.NewTool("draft_list",
	mcp.WithDescription("List stored drafts ordered by key, with age and staleness."),
	mcp.WithNumber("limit", mcp.Description("Page size (default 20, max 100)")),
	mcp.WithNumber("offset", mcp.Description("Items to skip (default 0)")),
	mcp.WithNumber("max_age_hours", mcp.Description("Staleness threshold in hours (default from config, 24)")),
)

var purgeToolDef = mcp.NewTool("draft_purge",
	mcp.WithDescription("Permanently delete drafts too old to be offered for recovery."),
	mcp.WithNumber("max_age_hours", mcp.Description("Drafts at least this old are deleted (default from config, 24)")),
	mcp.WithBoolean("include_corrupt", mcp.Description("Also delete envelopes that cannot be parsed")),
)

var exportToolDef = mcp.NewTool("draft_export",
	mcp.WithDescription("Write every readable draft to a JSONL backup file."),
	mcp.WithString("path", mcp.Description("Destination .jsonl path (default ~/.draftkeep/exports/<prefix>-<timestamp>.jsonl)")),
)

var importToolDef = mcp.NewTool("draft_import",
	mcp.WithDescription("Restore drafts from a JSONL backup, keeping their original timestamps."),
	mcp.WithString("path", mcp.Required(), mcp.Description("Source .jsonl path")),
	mcp.WithString("mode", mcp.Enum("error", "replace", "skip"), mcp.Description("Collision handling (default error: write nothing on conflict)")),
)
