package grounding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

var lookupActivityToolSchema = map[string]interface{}{
	"type": "function",
	"name": "lookup_activity",
	"description": "Retrieves recent login activity for a member to help diagnose access issues. " +
		"Use this when a user is having trouble logging in and you need to see their recent attempts. " +
		"Entries show success/failure status, error descriptions and source addresses.",
	"parameters": map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"member_number": map[string]interface{}{
				"type":        "string",
				"description": "The member's account number",
			},
		},
		"required":             []string{"member_number"},
		"additionalProperties": false,
	},
}

type activityEntry struct {
	Date        string `json:"date"`
	Type        string `json:"type"`
	Success     bool   `json:"success"`
	Description string `json:"description"`
	IP          string `json:"ip"`
}

// AttachActivityTool registers the external activity-log lookup tool. Without
// an API key the tool is not registered at all.
func AttachActivityTool(r *Resolver, endpoint, apiKey string) {
	if apiKey == "" || endpoint == "" {
		return
	}

	httpClient := &http.Client{Timeout: 15 * time.Second}

	r.Register("lookup_activity", Tool{
		Schema: lookupActivityToolSchema,
		Target: func(ctx context.Context, args map[string]interface{}) (ToolResult, error) {
			memberNumber, _ := args["member_number"].(string)
			if memberNumber == "" {
				return ToolResult{}, fmt.Errorf("lookup_activity called without a member number")
			}

			body, err := json.Marshal(map[string]string{"member_number": memberNumber})
			if err != nil {
				return ToolResult{}, err
			}

			url := fmt.Sprintf("%s?code=%s", endpoint, apiKey)
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
			if err != nil {
				return ToolResult{}, err
			}
			req.Header.Set("Content-Type", "application/json")

			res, err := httpClient.Do(req)
			if err != nil {
				return ToolResult{}, err
			}
			defer res.Body.Close()

			resByte, err := io.ReadAll(res.Body)
			if err != nil {
				return ToolResult{}, err
			}
			if res.StatusCode != http.StatusOK {
				return ToolResult{}, fmt.Errorf("activity endpoint returned %d: %s", res.StatusCode, string(resByte))
			}

			var entries []activityEntry
			if err := json.Unmarshal(resByte, &entries); err != nil {
				return ToolResult{}, fmt.Errorf("malformed activity response: %w", err)
			}

			return ToolResult{Text: formatActivity(memberNumber, entries), Destination: ToServer}, nil
		},
	})
}

func formatActivity(memberNumber string, entries []activityEntry) string {
	var b bytes.Buffer
	fmt.Fprintf(&b, "Login activity for member %s:\n\n", memberNumber)

	if len(entries) == 0 {
		b.WriteString("No login records found.")
		return b.String()
	}

	for _, entry := range entries {
		status := "Failed"
		if entry.Success {
			status = "Successful"
		}
		fmt.Fprintf(&b, "Date: %s\n", entry.Date)
		fmt.Fprintf(&b, "Event: %s\n", entry.Type)
		fmt.Fprintf(&b, "Status: %s\n", status)
		fmt.Fprintf(&b, "Description: %s\n", entry.Description)
		fmt.Fprintf(&b, "IP: %s\n", entry.IP)
		b.WriteString("-----\n")
	}
	return b.String()
}
