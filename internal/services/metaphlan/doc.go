// Package metaphlan adapts the MetaPhlAn taxonomic profiler as a batch tool.
package metaphlan
