package llm

import (
	"fmt"
	"time"
)

// ContentTokenBudget is the soft limit for article content in one prompt.
const ContentTokenBudget = 3000

// SystemPrompt frames every summarization call.
const SystemPrompt = `You are a skilled local news summarizer. Your task is to create concise, accurate summaries of local news articles that help busy residents stay informed about their community.

Guidelines:
- Focus on key facts, decisions, and impacts on the local community
- Preserve important names, dates, locations, and numbers
- Highlight any actions residents should take or be aware of
- Maintain a neutral, informative tone
- Keep summaries between 150-250 words
- Extract 3-5 key points
- Identify the overall sentiment
- List 2-4 main topics covered`

const userPromptTemplate = `Please summarize this local news article:

Title: %s
Section: %s
Published: %s

Article Content:
%s

Provide a JSON response with the following structure:
{
    "summary": "150-250 word summary focusing on key facts and community impact",
    "key_points": ["3-5 bullet points of most important information"],
    "sentiment": "neutral|positive|negative|mixed",
    "topics": ["2-4 main topics covered"],
    "tags": ["2-5 short lowercase tags"],
    "entities": [{"name": "entity name", "kind": "person|org|place"}],
    "event_dates": [{"title": "event", "date": "YYYY-MM-DD", "time": "HH:MM", "location": "where"}],
    "confidence_score": 0.95
}`

// BuildUserPrompt renders the user message for one article, truncating the
// content to the token budget.
func BuildUserPrompt(title, section string, published *time.Time, content string) string {
	if section == "" {
		section = "General"
	}
	publishedStr := "Unknown"
	if published != nil {
		publishedStr = published.Format("2006-01-02")
	}
	return fmt.Sprintf(userPromptTemplate, title, section, publishedStr,
		TruncateContent(content, ContentTokenBudget))
}
