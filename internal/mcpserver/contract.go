package mcpserver

// DetectionContract describes the detection records the tools return, so an
// LLM consumer knows which fields to read and what degraded means.
const DetectionContract = `# shortwatch Detection Format

Every detection returned by list_detections, get_detection and enrich_video
is a JSON object with these fields.

| Field | Meaning |
|---|---|
| id | UUID of the detection |
| url | URL exactly as seen in browser history or sidecar output |
| video_id | YouTube video id extracted from the URL |
| title | Video title, empty when metadata was unavailable |
| analysis | Verdict text from the analysis service (analyze mode only) |
| origin | ` + "`history`" + `, ` + "`sidecar`" + ` or ` + "`manual`" + ` |
| visited_at | Browser visit time in the history store's own clock |
| detected_at | RFC 3339 time the detection was published |
| degraded | true when any enrichment source failed or timed out |
| enrichment | Metadata, comments, captions and per-source errors |

## Rules

1. **Degraded is not failure.** A degraded detection still carries whatever
   the healthy sources returned; check ` + "`enrichment.errors`" + ` to see which
   source failed and whether it timed out.
2. **Comments and captions are always arrays**, possibly empty.
3. **Durations** in ` + "`enrichment.metadata.duration`" + ` are nanoseconds; caption
   ` + "`start`" + ` and ` + "`duration`" + ` are seconds.
4. **Canonical URL** for any video is ` + "`https://www.youtube.com/shorts/<video_id>`" + `.
`
