package prompt

// 內建模板。名稱對應管線階段；之後可註冊更高版本覆蓋。
var builtinTemplates = []*Template{
	{
		Name:    "extract",
		Version: 1,
		System:  "你是一個食譜資料擷取引擎，只輸出 JSON，不輸出任何其他文字。",
		Body: `請從以下網頁文字擷取出一份結構化食譜。
要求：
1. 只根據提供的文字擷取，不要補充文字中沒有的內容
2. 無法確定的數值填 0、無法確定的文字填空字串
3. 所有欄位都必須使用雙引號
4. quantity 必須是數字，分數請換算為小數（例如 1/2 換算為 0.5）
5. prep_time_minutes 與 cook_time_minutes 以分鐘為整數表示
6. 步驟請依照原文順序編號
7. 只返回 JSON，不要加任何說明文字

請以以下 JSON 格式返回：
{
"name": "食譜名稱",
"description": "描述",
"prep_time_minutes": 0,
"cook_time_minutes": 0,
"servings": 0,
"ingredients": [
	{"name": "食材名稱", "quantity": 0, "unit": "單位", "notes": "備註"}
],
"instructions": [
	{"step_number": 1, "text": "步驟內容"}
],
"cuisine": "",
"tags": [],
"image_url": ""
}

來源網址：{{source_url}}
頁面標題：{{page_title}}

網頁文字：
{{page_text}}`,
	},
	{
		Name:    "repair",
		Version: 1,
		System:  "你是一個文字改寫引擎，只輸出 JSON，不輸出任何其他文字。",
		Body: `以下食譜段落與原始網頁文字過於相似，請改寫。
要求：
1. 保留所有事實內容：份量、溫度、時間、食材名稱不可更動
2. 改變用詞與句子結構，使文字不再逐字重複原文
3. 每個段落獨立改寫，保持原本的含義與順序
4. 只返回 JSON，不要加任何說明文字

請以以下 JSON 格式返回：
{
"sections": [
	{"id": "段落識別名", "text": "改寫後文字"}
]
}

需要改寫的段落：
{{sections}}

原始網頁文字（參考用，避免與其重複）：
{{source_text}}`,
	},
	{
		Name:    "normalize",
		Version: 1,
		System:  "你是一個食譜資料整理引擎，只輸出 JSON，不輸出任何其他文字。",
		Body: `請檢查以下既有食譜，提出正規化修補建議。
要求：
1. 每個修補以 JSON Pointer 路徑定位（例如 /ingredients/0/unit）
2. op 只能是 add、replace、remove
3. risk 只能是 low、medium、high：改動數值或刪除內容為 high、
   改寫文字為 medium、補齊缺漏欄位為 low
4. 每個修補都要附上 rationale 說明原因
5. 不要發明食譜中沒有依據的內容
6. 只返回 JSON，不要加任何說明文字

{{focus}}

請以以下 JSON 格式返回：
{
"operations": [
	{"path": "/servings", "op": "replace", "value": 4, "risk": "high", "rationale": "原因"}
]
}

既有食譜：
{{recipe_json}}`,
	},
}
