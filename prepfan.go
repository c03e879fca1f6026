// Package prepfan designs and applies supervised variable treatment plans that turn messy
// tabular data -- numerics with missing values, categoricals with high-cardinality, rare or
// missing levels -- into a purely numeric, fully populated feature matrix.
//
// The fit entry points (FitNumeric, FitBinomial, FitMultinomial, FitUnsupervised) return a
// deployable TreatmentPlan along with a cross-validated training frame ("cross-frame") whose
// outcome-derived columns are produced out-of-fold, so they are free of the nested-model bias
// that naive in-sample impact coding introduces.
package prepfan

// Verbose is the package-level printing switch.  No function of this package reads it;
// warnings are always logged.
var Verbose = true
