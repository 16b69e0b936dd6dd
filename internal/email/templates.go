package email

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"
)

//go:embed templates/*
var templateFS embed.FS

var (
	replyHTML = htmltemplate.Must(htmltemplate.ParseFS(templateFS, "templates/reply.html"))
	replyText = texttemplate.Must(texttemplate.ParseFS(templateFS, "templates/reply.txt"))
)

type replyEmailData struct {
	Title             string
	CustomerName      string
	ResponseText      string
	DealershipName    string
	DealershipEmail   string
	DealershipPhone   string
	DealershipAddress string
}

func newReplyEmailData(r Reply) replyEmailData {
	name := r.CustomerName
	if name == "" {
		name = "kunde"
	}
	return replyEmailData{
		Title:             "Svar fra " + r.DealershipName,
		CustomerName:      name,
		ResponseText:      r.ResponseText,
		DealershipName:    r.DealershipName,
		DealershipEmail:   r.DealershipEmail,
		DealershipPhone:   r.DealershipPhone,
		DealershipAddress: r.DealershipAddress,
	}
}

// RenderReply returns the HTML and plain-text bodies of a reply.
func RenderReply(r Reply) (html, text string, err error) {
	data := newReplyEmailData(r)

	var htmlBuf bytes.Buffer
	if err := replyHTML.ExecuteTemplate(&htmlBuf, "reply.html", data); err != nil {
		return "", "", fmt.Errorf("execute email template reply.html: %w", err)
	}
	var textBuf bytes.Buffer
	if err := replyText.ExecuteTemplate(&textBuf, "reply.txt", data); err != nil {
		return "", "", fmt.Errorf("execute email template reply.txt: %w", err)
	}
	return htmlBuf.String(), textBuf.String(), nil
}
