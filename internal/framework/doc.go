// Package framework talks to the external test framework.
//
// The framework is an opaque subprocess that writes one JSON object per
// stdout line. Three message kinds exist:
//
//	{"kind":"collection","outcome":"passed","items":["a.py::t1"]}
//	{"kind":"report","nodeid":"a.py::t1","outcome":"failed","when":"call","longrepr":"..."}
//	{"kind":"done"}
//
// Any other output line is ignored. The bundled pytest plugin produces
// exactly this stream; see InstallPytestPlugin.
package framework
