package mirror

// PackageIndexSources are the Python package index mirrors, in preference order.
var PackageIndexSources = []Source{
	{Label: "PyPI", URL: "https://pypi.org/simple", Category: CategoryPackageIndex},
	{Label: "Tsinghua", URL: "https://pypi.tuna.tsinghua.edu.cn/simple", Category: CategoryPackageIndex},
	{Label: "Aliyun", URL: "https://mirrors.aliyun.com/pypi/simple", Category: CategoryPackageIndex},
	{Label: "USTC", URL: "https://mirrors.ustc.edu.cn/pypi/simple", Category: CategoryPackageIndex},
}

// InterpreterSources are the standalone interpreter archive mirrors, in preference order.
var InterpreterSources = []Source{
	{Label: "GitHub", URL: "https://github.com/astral-sh/python-build-standalone/releases/download", Category: CategoryInterpreter},
	{Label: "NJU", URL: "https://mirror.nju.edu.cn/github-release/indygreg/python-build-standalone", Category: CategoryInterpreter},
	{Label: "Huawei Cloud", URL: "https://mirrors.huaweicloud.com/python-build-standalone", Category: CategoryInterpreter},
}

// Sources returns a copy of the enumerated sources for a category.
func Sources(c Category) []Source {
	var src []Source
	switch c {
	case CategoryPackageIndex:
		src = PackageIndexSources
	case CategoryInterpreter:
		src = InterpreterSources
	}
	out := make([]Source, len(src))
	copy(out, src)
	return out
}

// LabelFor returns the label of the enumerated source with the given URL.
func LabelFor(url string) (string, bool) {
	for _, set := range [][]Source{PackageIndexSources, InterpreterSources} {
		for _, s := range set {
			if s.URL == url {
				return s.Label, true
			}
		}
	}
	return "", false
}
