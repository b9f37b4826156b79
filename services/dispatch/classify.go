package dispatch

import (
	"encoding/json"
	"strings"

	"github.com/go-resty/resty/v2"
)

// successPhrases are the site's confirmation wordings; any one of them
// in a response body counts as an accepted trade.
var successPhrases = []string{"успеш", "отправ", "создан"}

// classifier inspects one response shape for an explicit success
// signal. Classifiers are evaluated in priority order and a response
// none of them recognizes is treated as ambiguous, never as success.
type classifier func(resp *resty.Response) bool

var classifiers = []classifier{
	classifyRedirect,
	classifyJSON,
	classifyPhrase,
}

func classified(resp *resty.Response) bool {
	for _, c := range classifiers {
		if c(resp) {
			return true
		}
	}
	return false
}

// classifyRedirect accepts a redirect pointing back into the trades
// section, the strongest signal the site gives.
func classifyRedirect(resp *resty.Response) bool {
	code := resp.StatusCode()
	if code != 301 && code != 302 {
		return false
	}
	return strings.Contains(resp.Header().Get("Location"), "/trades/")
}

func classifyJSON(resp *resty.Response) bool {
	var body map[string]any
	if json.Unmarshal(resp.Body(), &body) != nil {
		return false
	}
	if truthy(body["success"]) || truthy(body["ok"]) {
		return true
	}
	if trade, ok := body["trade"].(map[string]any); ok {
		return truthy(trade["id"])
	}
	return false
}

func classifyPhrase(resp *resty.Response) bool {
	body := strings.ToLower(resp.String())
	for _, phrase := range successPhrases {
		if strings.Contains(body, phrase) {
			return true
		}
	}
	return false
}

func truthy(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case float64:
		return x != 0
	case string:
		return x != "" && x != "0" && x != "false"
	default:
		return false
	}
}
