package bot

import (
	"fmt"
	"html"
	"strings"
)

// parseMode is how the bridge renders texts and captions. Every value
// interpolated below goes through esc.
const parseMode = "HTML"

const (
	textInviteButton      = "Add me to your chat! 🤖"
	textWrongStorageRoom  = "❌ You can only upload movies in the designated storage group. 🎥"
	textImageReceived     = "✅ Image received! Now, please upload the movie file(s)."
	textCommitFailed      = "❌ Failed to add the movie. Please try again later."
	textUploadIncomplete  = "Please upload both a movie file and an image."
	textWrongSearchRoom   = "❌ Use this feature in the designated search group."
	textEmptyQuery        = "🚨 Provide a movie name to search. Use /search &lt;movie name&gt;"
	textSearchFailed      = "❌ An unexpected error occurred. Please try again later."
	textRateLimited       = "⏳ You're searching too fast. Please wait a moment and try again."
	textSuggestionsHeader = "🤔 Movie not found. Did you mean one of these?\nClick a name to search:"
	textNoSuggestions     = "😔 Sorry, no matching movies found.\nTip: Try searching with a different name or spelling."
	textEntryGone         = "❌ That movie is no longer available."
)

func greeting(name string) string {
	if name == "" {
		name = "there"
	}
	return fmt.Sprintf("Hi %s! 👋 Use me to search or upload movies. 🎥", esc(name))
}

func welcome(name string) string {
	if name == "" {
		name = "Movie Fan"
	}
	return fmt.Sprintf("Welcome, %s! 🎬\n\n"+
		"Search for any movie by typing its title. Easy as that! 🍿\n"+
		"Enjoy exploring films with us! 🎥", esc(name))
}

func filesReceived(n int) string {
	return fmt.Sprintf("✅ %d file(s) received! Now, please upload an image for the related file(s).", n)
}

func movieAdded(name string) string {
	return fmt.Sprintf("✅ Successfully added movie: %s", esc(name))
}

func newMovieNotice(name string) string {
	return fmt.Sprintf("New movie added: <b>%s</b>! 🎬\nCheck it out! 🍿", esc(name))
}

func resultsHeader(n int, query string) string {
	return fmt.Sprintf("🔍 <b>Found %d result(s) for '%s':</b>", n, esc(query))
}

func entryCaption(name string) string {
	return fmt.Sprintf("🎥 <b>%s</b>", esc(name))
}

func mediaMissing(name string) string {
	return fmt.Sprintf("🎥 <b>%s</b> (media missing)", esc(name))
}

func queryTooShort(minChars int) string {
	return fmt.Sprintf("🔎 Type at least %d characters so I can suggest titles.", minChars)
}

func commitAlert(userID int64, cause error) string {
	return fmt.Sprintf("⚠️ Catalog commit failed for user %d: %s", userID, esc(fmt.Sprint(cause)))
}

// esc escapes user-controlled text for the HTML parse mode.
func esc(s string) string {
	return html.EscapeString(s)
}

// sanitize drops invalid UTF-8 so the transport never rejects a message.
func sanitize(s string) string {
	return strings.ToValidUTF8(s, "")
}
