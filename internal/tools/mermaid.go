package tools

import (
	"fmt"
	"strings"

	"github.com/Napageneral/onboard/internal/memory"
)

const (
	graphMaxNodes   = 10
	graphLabelChars = 50
)

// BuildMermaidGraph renders a top-down flowchart from topic to the memories
// mentioning it, grouped under Telegram, Drive and Code category nodes.
// Node numbering follows match order, so skipped sources leave gaps.
func BuildMermaidGraph(topic string, entries []memory.Entry) string {
	type node struct{ id, label string }
	var telegram, drive, code []node

	for i, e := range memory.MatchTopic(entries, topic, graphMaxNodes) {
		n := node{id: fmt.Sprintf("Node%d", i), label: mermaidLabel(memory.Preview(e.Content, graphLabelChars))}
		switch memory.Bucket(e.Source) {
		case memory.SourceTelegram:
			telegram = append(telegram, n)
		case memory.SourceDrive:
			drive = append(drive, n)
		case memory.SourceGithub:
			code = append(code, n)
		}
	}

	var b strings.Builder
	b.WriteString("graph TD\n")
	fmt.Fprintf(&b, "    Start[\"%s\"]\n", mermaidLabel(topic))

	category := func(id, title string, nodes []node) {
		if len(nodes) == 0 {
			return
		}
		fmt.Fprintf(&b, "    Start --> %s[\"%s\"]\n", id, title)
		for _, n := range nodes {
			fmt.Fprintf(&b, "    %s --> %s[\"%s\"]\n", id, n.id, n.label)
		}
	}
	category("Telegram", "Telegram Discussions", telegram)
	category("Drive", "Drive Documents", drive)
	category("Code", "Code Implementation", code)

	if len(telegram)+len(drive)+len(code) == 0 {
		b.WriteString("    Start --> NoData[\"No related data found\"]\n")
	}
	return b.String()
}

// mermaidLabel keeps a label inside its ["..."] brackets.
func mermaidLabel(s string) string {
	s = strings.ReplaceAll(s, `"`, "'")
	s = strings.ReplaceAll(s, "\r\n", " ")
	return strings.ReplaceAll(s, "\n", " ")
}

func fenceMermaid(graph string) string {
	return "```mermaid\n" + graph + "\n```"
}
