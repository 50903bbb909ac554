// Package paramschema derives the typed parameter descriptors the HTTP
// surface publishes and builds the validators the AnalysisEngine adapter
// uses before invoking an analysis method. A dynamic-language
// implementation could derive these by introspecting the live analysis
// engine's constructor and method signatures at startup; Go has no
// runtime introspection, so the descriptor tables are declared
// statically instead.
package paramschema

import "github.com/metakeggweb/mekeweserver/internal/model"

// globalDescriptors is the constructor-level parameter set shared by
// every analysis method, plus the always-forced input_file_path file
// parameter.
var globalDescriptors = []model.ParameterDescriptor{
	{Name: "input_file_path", Type: model.ParamFile, IsList: true, Required: true,
		Description: "Input file(s): David analysis output or RNAseq export."},
	{Name: "sheet_name_paths", Type: model.ParamStr, Required: true, Default: "pathways",
		Description: "Sheet name containing the pathway information."},
	{Name: "sheet_name_genes", Type: model.ParamStr, Required: true, Default: "gene_metrics",
		Description: "Sheet name for gene information."},
	{Name: "genes_column", Type: model.ParamStr, Required: true, Default: "gene_symbol",
		Description: "Column name for gene symbols."},
	{Name: "log2fc_column", Type: model.ParamStr, Required: true, Default: "logFC",
		Description: "Column name for log2fc values."},
	{Name: "count_threshold", Type: model.ParamInt, Default: 2,
		Description: "Minimum number of genes per pathway for the pathway to be drawn."},
	{Name: "pathway_pvalue", Type: model.ParamFloat,
		Description: "Raw p-value threshold for the pathways."},
	{Name: "input_label", Type: model.ParamStr,
		Description: "Input label or list of labels for multiple inputs."},
	{Name: "folder_extension", Type: model.ParamStr,
		Description: "Folder extension appended to the default naming scheme."},
	{Name: "methylation_path", Type: model.ParamStr,
		Description: "Path to methylation data (Excel, CSV or TSV)."},
	{Name: "methylation_pvalue", Type: model.ParamStr,
		Description: "Column name for methylation p-value."},
	{Name: "methylation_genes", Type: model.ParamStr,
		Description: "Column name for methylation gene symbols."},
	{Name: "methylation_pvalue_thresh", Type: model.ParamFloat, Default: 0.05,
		Description: "P-value threshold for the methylation values."},
	{Name: "methylation_probe_column", Type: model.ParamStr,
		Description: "Column name for the methylation probes."},
	{Name: "probes_to_cgs", Type: model.ParamBool, Default: false,
		Description: "Correct probes to positions and keep the first CG of duplicated positions."},
	{Name: "miRNA_path", Type: model.ParamStr,
		Description: "Path to miRNA data (Excel, CSV or TSV)."},
	{Name: "miRNA_pvalue", Type: model.ParamStr,
		Description: "Column name for miRNA p-value."},
	{Name: "miRNA_genes", Type: model.ParamStr,
		Description: "Column name for miRNA gene symbols."},
	{Name: "miRNA_pvalue_thresh", Type: model.ParamFloat, Default: 0.05,
		Description: "P-value threshold for the miRNA values."},
	{Name: "miRNA_ID_column", Type: model.ParamStr,
		Description: "Column name for the miRNA IDs."},
	{Name: "benjamini_threshold", Type: model.ParamFloat,
		Description: "Benjamini-Hochberg p-value threshold for the pathway."},
	{Name: "save_to_eps", Type: model.ParamBool, Default: false,
		Description: "Also save maps/colorscales/legends as separate .eps files."},
	{Name: "compounds_list", Type: model.ParamStr, IsList: true,
		Description: "List of compound IDs to map in pathways if found."},
}

// updateOptionalNames are the fields that are required-with-default on
// create but optional (no-op if absent) on PATCH.
var updateOptionalNames = map[string]bool{
	"sheet_name_paths": true,
	"sheet_name_genes": true,
	"genes_column":     true,
	"log2fc_column":    true,
}

// methodDescriptors holds any parameters specific to one named analysis
// method, beyond the global set. The retrieved analysis-engine sources
// did not include the per-method function signatures, so every method's
// specific set is empty: each method is fully configured by the global
// (constructor-level) parameters, and simply selects which computation
// the engine performs. See the Open Questions section of DESIGN.md.
var methodDescriptors = map[string][]model.ParameterDescriptor{}

// GlobalDescriptors returns the constructor-level parameter descriptors.
func GlobalDescriptors() []model.ParameterDescriptor {
	out := make([]model.ParameterDescriptor, len(globalDescriptors))
	copy(out, globalDescriptors)
	return out
}

// MethodDescriptors returns the parameter descriptors specific to method.
func MethodDescriptors(method string) []model.ParameterDescriptor {
	ds := methodDescriptors[method]
	out := make([]model.ParameterDescriptor, len(ds))
	copy(out, ds)
	return out
}

// Find scans globals then every method's parameters for name.
func Find(name string) (model.ParameterDescriptor, bool) {
	for _, d := range globalDescriptors {
		if d.Name == name {
			return d, true
		}
	}
	for _, ds := range methodDescriptors {
		for _, d := range ds {
			if d.Name == name {
				return d, true
			}
		}
	}
	return model.ParameterDescriptor{}, false
}
