// Package extractors turns stored files into page-tagged text blocks.
//
// Each format lives in its own subpackage and is registered with the
// Registry at startup. Block classification is shared: lines are grouped
// into paragraphs, table rows and captions by the same rules whatever the
// source format.
package extractors
