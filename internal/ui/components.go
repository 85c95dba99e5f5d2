package ui

import (
	"context"
	_ "embed"
	"html"
	"io"

	"github.com/a-h/templ"
)

var (
	//go:embed static/app.css
	appCSS string

	//go:embed static/app.js
	appJS string
)

// Page carries the server-side values the file manager page needs. Everything
// else is fetched by the client from /api/list.
type Page struct {
	Title string
}

// Layout renders a full HTML page with a title and body component.
func Layout(title string, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := io.WriteString(w, "<!DOCTYPE html><html lang=\"en\" data-theme=\"dark\">")
		if err != nil {
			return err
		}

		// Head
		_, err = io.WriteString(w, "<head><meta charset=\"utf-8\">")
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, "<meta name=\"viewport\" content=\"width=device-width, initial-scale=1\">")
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, "<title>"+html.EscapeString(title)+"</title>")
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, "<style>"+appCSS+"</style>")
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, "</head><body>")
		if err != nil {
			return err
		}

		if err := body.Render(ctx, w); err != nil {
			return err
		}

		_, err = io.WriteString(w, "</body></html>")
		return err
	})
}

// FileManagerPage renders the single page file manager shell. The listing,
// breadcrumbs, sorting and search are all computed client-side from the flat
// key listing.
func FileManagerPage(page Page) templ.Component {
	return Layout(page.Title, templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		title := html.EscapeString(page.Title)

		_, err := io.WriteString(w, "<dialog id=\"login\"><form method=\"dialog\" id=\"login-form\">")
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, "<h2>"+title+"</h2><p id=\"login-error\" class=\"error\" hidden>Password incorrect.</p>")
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, "<input type=\"password\" id=\"password\" placeholder=\"Password\" autocomplete=\"current-password\" required>")
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, "<button type=\"submit\">Unlock</button></form></dialog>")
		if err != nil {
			return err
		}

		_, err = io.WriteString(w, "<header class=\"toolbar\"><h1>"+title+"</h1>")
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, "<input type=\"search\" id=\"search\" placeholder=\"Search\">")
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, "<select id=\"sort\"><option value=\"name\">Name</option><option value=\"size\">Size</option><option value=\"date\">Date</option></select>")
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, "<button id=\"view\" title=\"Toggle view\">Grid/List</button><button id=\"theme\" title=\"Toggle theme\">Theme</button>")
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, "<button id=\"new-folder\">New folder</button><label class=\"button\">Upload<input type=\"file\" id=\"upload\" multiple hidden></label>")
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, "<button id=\"rename\" disabled>Rename/Move</button><button id=\"delete\" disabled>Delete</button></header>")
		if err != nil {
			return err
		}

		_, err = io.WriteString(w, "<nav id=\"breadcrumbs\"></nav><main id=\"drop\"><div id=\"entries\"></div></main>")
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, "<div id=\"toast\" role=\"status\" hidden></div>")
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, "<dialog id=\"lightbox\"><img id=\"lightbox-img\" alt=\"\"><button id=\"lightbox-close\">Close</button></dialog>")
		if err != nil {
			return err
		}

		_, err = io.WriteString(w, "<script>"+appJS+"</script>")
		return err
	}))
}
