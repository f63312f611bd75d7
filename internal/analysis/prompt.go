package analysis

// systemPrompt asks for the structured summary stored with every record. The key
// names are part of the persisted format and must not be translated.
const systemPrompt = `You are an expert at reading academic papers and producing structured summaries of their core content.
Read the full text supplied by the user and fill in exactly this JSON structure:

{
  "文献信息": {
    "标题": "paper title",
    "作者": ["author 1", "author 2"],
    "期刊": "journal or venue",
    "年份": "publication year"
  },
  "内容提取": {
    "摘要": "one or two sentence core summary without background",
    "关键图表": [
      {
        "图序号": "e.g. Figure 1",
        "图表类型": "flow chart / plot / table, judged from the text",
        "核心内容": "the key finding or relationship the figure shows",
        "支撑结论": "the conclusion this figure supports"
      }
    ],
    "实验": ["method: subject + operation + metric", "setup: control / treatment groups"],
    "结论": ["main data-driven findings", "comparison with prior work"],
    "创新点": ["methodological, theoretical or applied novelty", "what drives the improvement"],
    "不足": ["method limitations", "experimental weaknesses", "open problems"]
  }
}

Write the values in the language of the paper. Return only the filled JSON object with no other text.`

const userPromptPrefix = "Here is the full text of the paper to analyze:\n\n"

// parseSchema is the minimum shape a parse must have to be stored.
const parseSchema = `{
  "type": "object",
  "required": ["文献信息"],
  "properties": {
    "文献信息": {
      "type": "object",
      "properties": {
        "作者": {"type": ["array", "string"]}
      }
    }
  }
}`
