package workspace

// templateFile is one file written when a project is created.
type templateFile struct {
	Path    string
	Content string
}

// projectTemplates maps a language id to its starter files.
var projectTemplates = map[string][]templateFile{
	"java": {
		{Path: "src/Main.java", Content: "public class Main {\n" +
			"    public static void main(String[] args) {\n" +
			"        System.out.println(\"Hello Java World!\");\n" +
			"    }\n" +
			"}\n"},
	},
	"python": {
		{Path: "main.py", Content: "print('Hello Python World!')\n"},
	},
	"javascript": {
		{Path: "index.js", Content: "console.log('Hello Node.js World!');\n"},
	},
	"cpp": {
		{Path: "main.cpp", Content: "#include <iostream>\n\n" +
			"int main() {\n" +
			"    std::cout << \"Hello C++ World!\" << std::endl;\n" +
			"    return 0;\n" +
			"}\n"},
	},
	// dotnet run needs the project descriptor next to the source.
	"csharp": {
		{Path: "Program.cs", Content: "Console.WriteLine(\"Hello C# World!\");\n"},
		{Path: "MyProject.csproj", Content: "<Project Sdk=\"Microsoft.NET.Sdk\">\n" +
			"  <PropertyGroup>\n" +
			"    <OutputType>Exe</OutputType>\n" +
			"    <TargetFramework>net7.0</TargetFramework>\n" +
			"    <ImplicitUsings>enable</ImplicitUsings>\n" +
			"    <Nullable>enable</Nullable>\n" +
			"  </PropertyGroup>\n" +
			"</Project>\n"},
	},
}

var fallbackTemplate = []templateFile{
	{Path: "readme.txt", Content: "The selected language is not supported or no language was selected.\n"},
}

func templateFor(language string) []templateFile {
	if files, ok := projectTemplates[language]; ok {
		return files
	}
	return fallbackTemplate
}
