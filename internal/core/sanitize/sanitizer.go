package sanitize

import (
	"regexp"
	"strings"

	"recipe-ingest/internal/pkg/common"

	"golang.org/x/net/html"
)

// Result 清理結果
type Result struct {
	Text         string              // 純文字內容
	Metadata     common.PageMetadata // 頁面中繼資料
	RecipeJSONLD []byte              // 食譜形狀的 JSON-LD 片段（可能為 nil）
}

// 依標籤名稱整塊移除的元素
var strippedTags = map[string]bool{
	"script": true, "style": true, "noscript": true, "iframe": true,
	"svg": true, "nav": true, "header": true, "footer": true,
	"aside": true, "form": true, "button": true, "select": true,
	"input": true, "template": true, "object": true, "embed": true,
}

// 依 class / id 啟發式移除的元素（導覽、廣告、社群、留言等版面雜訊）
var noisyClassPattern = regexp.MustCompile(`(?i)\b(nav|navbar|menu|sidebar|footer|header|advert|ads?|banner|social|share|sharing|comment|comments|cookie|popup|modal|breadcrumb|related|promo|newsletter|subscribe)\b`)

// 轉換為換行的區塊級元素
var blockTags = map[string]bool{
	"p": true, "div": true, "section": true, "article": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"ul": true, "ol": true, "table": true, "tr": true, "blockquote": true,
	"pre": true, "figure": true, "figcaption": true,
}

var (
	multiSpacePattern   = regexp.MustCompile(`[ \t]+`)
	multiNewlinePattern = regexp.MustCompile(`\n{3,}`)
)

// Sanitize 將原始標記轉為純文字，同時擷取頁面中繼資料與
// 內嵌的食譜結構化資料。結構化資料掃描獨立於文字擷取進行，
// 壞掉的區塊只略過、不中斷清理。
func Sanitize(rawHTML string) (*Result, error) {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return nil, err
	}

	result := &Result{}

	// JSON-LD 掃描在元素剝除之前進行，script 元素稍後會被移除
	blocks := collectJSONLDBlocks(doc)
	result.RecipeJSONLD = FindRecipeBlock(blocks)

	result.Metadata = extractMetadata(doc)

	var sb strings.Builder
	emitText(doc, &sb)
	result.Text = normalizeWhitespace(sb.String())

	return result, nil
}

// emitText 深度優先走訪 DOM，略過雜訊元素、
// 將區塊結構轉為換行、清單項目轉為項目符號
func emitText(n *html.Node, sb *strings.Builder) {
	if n.Type == html.ElementNode {
		if strippedTags[n.Data] {
			return
		}
		if cls := attrValue(n, "class") + " " + attrValue(n, "id"); noisyClassPattern.MatchString(cls) {
			return
		}
		switch {
		case n.Data == "br":
			sb.WriteString("\n")
		case n.Data == "li":
			sb.WriteString("\n• ")
		case blockTags[n.Data]:
			sb.WriteString("\n")
		}
	}

	if n.Type == html.TextNode {
		sb.WriteString(n.Data)
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		emitText(c, sb)
	}

	if n.Type == html.ElementNode && blockTags[n.Data] {
		sb.WriteString("\n")
	}
}

// normalizeWhitespace 壓縮空白：連續空格合一、三個以上換行縮為兩個
func normalizeWhitespace(s string) string {
	s = multiSpacePattern.ReplaceAllString(s, " ")
	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}
	s = strings.Join(lines, "\n")
	s = multiNewlinePattern.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// extractMetadata 擷取頁面中繼資料
func extractMetadata(doc *html.Node) common.PageMetadata {
	meta := common.PageMetadata{}

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "html":
				if lang := attrValue(n, "lang"); lang != "" {
					meta.Language = lang
				}
			case "title":
				if meta.Title == "" && n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
					meta.Title = strings.TrimSpace(n.FirstChild.Data)
				}
			case "meta":
				name := attrValue(n, "name")
				property := attrValue(n, "property")
				content := strings.TrimSpace(attrValue(n, "content"))
				if content == "" {
					break
				}
				switch {
				case name == "description" || property == "og:description":
					if meta.Description == "" {
						meta.Description = content
					}
				case name == "author":
					if meta.Author == "" {
						meta.Author = content
					}
				case property == "og:site_name":
					if meta.SiteName == "" {
						meta.SiteName = content
					}
				case property == "og:title":
					if meta.Title == "" {
						meta.Title = content
					}
				case property == "og:url":
					if meta.CanonicalURL == "" {
						meta.CanonicalURL = content
					}
				}
			case "link":
				if attrValue(n, "rel") == "canonical" {
					if href := attrValue(n, "href"); href != "" {
						meta.CanonicalURL = href
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return meta
}

// collectJSONLDBlocks 收集所有 application/ld+json 區塊的原始內容
func collectJSONLDBlocks(doc *html.Node) []string {
	var blocks []string

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "script" &&
			strings.EqualFold(attrValue(n, "type"), "application/ld+json") {
			var sb strings.Builder
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.TextNode {
					sb.WriteString(c.Data)
				}
			}
			if s := strings.TrimSpace(sb.String()); s != "" {
				blocks = append(blocks, s)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return blocks
}

// attrValue 取得屬性值，不存在時回空字串
func attrValue(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
